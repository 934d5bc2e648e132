// Package cli wires the stack-api process modes into one cobra command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/stackhq/stack-api/internal/config"
	"github.com/stackhq/stack-api/internal/di"
	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/infra"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/repository"
	"github.com/stackhq/stack-api/internal/service"
)

type options struct {
	out           io.Writer
	loadConfig    func() (*config.Config, error)
	adminEmail    string
	adminPassword string
}

func NewRootCommand() *cobra.Command {
	opts := &options{out: os.Stdout, loadConfig: config.Load}
	cmd := &cobra.Command{
		Use:           "stack-api",
		Short:         "Session-authenticated HTTP API and background worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newWebCommand(opts), newWorkerCommand(opts), newMigrateCommand(opts))
	return cmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newWebCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			cfg, logger, lp, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			a, err := di.InitializeApp(ctx, cfg, logger, lp)
			if err != nil {
				logger.Error("failed to start web server", "error", err)
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newWorkerCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs and cron schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			cfg, logger, lp, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			w, err := di.InitializeWorker(ctx, cfg, logger, lp)
			if err != nil {
				logger.Error("failed to start the worker", "error", err)
				return err
			}
			logger.Info("successfully initialized worker")
			return w.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and optionally seed an admin user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, lp, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			if lp != nil {
				defer func() { _ = lp.Shutdown(context.WithoutCancel(ctx)) }()
			}

			db, err := infra.OpenPostgres(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = infra.CloseDB(db) }()
			if err := infra.Migrate(ctx, db); err != nil {
				return err
			}
			logger.Info("migrations applied")

			if opts.adminEmail == "" {
				return nil
			}
			// Grants invalidate the profile cache the web process reads.
			client, err := infra.OpenRedis(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			users := service.NewUserService(repository.NewUserRepository(db), service.NewRedisJSONCache(client, ""), cfg.ProfileCacheTTL)
			return seedAdmin(ctx, users, opts.adminEmail, opts.adminPassword, logger)
		},
	}
	cmd.Flags().StringVar(&opts.adminEmail, "seed-admin-email", "", "create an ADMIN user with this email, or grant ADMIN to an existing one")
	cmd.Flags().StringVar(&opts.adminPassword, "seed-admin-password", "", "password for the seeded admin")
	return cmd
}

type adminSeed struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
}

func seedAdmin(ctx context.Context, users service.UserServiceInterface, email, password string, logger *slog.Logger) error {
	seed := adminSeed{Email: email, Password: password}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(seed); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	existing, err := users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.Permissions.Has(domain.PermissionAdmin):
		logger.Info("admin already present", "user_id", existing.ID)
		return nil
	case err == nil:
		if _, err := users.GrantPermissions(ctx, existing.ID, domain.PermissionAdmin); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		logger.Info("admin permission granted", "user_id", existing.ID)
		return nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return fmt.Errorf("seed admin: %w", err)
	}
	u, err := users.Create(ctx, email, "Administrator", password, []domain.Permission{domain.PermissionAdmin})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Info("admin seeded", "user_id", u.ID)
	return nil
}

func bootstrap(ctx context.Context, opts *options) (*config.Config, *slog.Logger, *sdklog.LoggerProvider, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, lp, err := observability.NewLogger(ctx, cfg, opts.out)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, lp, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
