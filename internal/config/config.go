package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Deployment environments. Rate limiting is only enforced in production.
const (
	EnvDevelopment = "development"
	EnvLocal       = "local"
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvTest        = "test"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" validate:"oneof=development local production staging test"`
	ServiceName string `env:"SERVICE_NAME" validate:"required"`
	Port        int    `env:"PORT" validate:"min=1,max=65535"`

	CookieSecret        string        `env:"COOKIE_SECRET" validate:"required,min=32"`
	AdminAPIKey         string        `env:"EXTERNAL_ADMIN_API_KEY"`
	CORSOrigins         []string      `env:"CORS_ORIGINS"`
	AuthStoreTimeout    time.Duration `env:"AUTH_STORE_TIMEOUT" validate:"gt=0"`
	RequestBodyLimit    int64         `env:"REQUEST_BODY_LIMIT_BYTES" validate:"gt=0"`
	ProfileCacheTTL     time.Duration `env:"PROFILE_CACHE_TTL"`
	ReadHeaderTimeout   time.Duration `env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT"`
	ShutdownHTTPTimeout time.Duration `env:"SHUTDOWN_HTTP_TIMEOUT"`

	DatabaseURL      string `env:"DATABASE_URL" validate:"required"`
	DatabaseMaxConns int    `env:"DATABASE_MAX_CONNS" validate:"min=1"`
	RedisURL         string `env:"REDIS_URL" validate:"required"`

	LogLevel string `env:"LOG_LEVEL"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL"`

	WorkerConcurrency         int           `env:"WORKER_CONCURRENCY" validate:"min=1"`
	WorkerPollInterval        time.Duration `env:"WORKER_POLL_INTERVAL" validate:"gt=0"`
	WorkerMaintenanceInterval time.Duration `env:"WORKER_MAINTENANCE_INTERVAL" validate:"gt=0"`
	WorkerStuckAfter          time.Duration `env:"WORKER_STUCK_AFTER" validate:"gt=0"`
	WorkerLongRunningStuck    time.Duration `env:"WORKER_LONG_RUNNING_STUCK_AFTER" validate:"gtfield=WorkerStuckAfter"`
}

// Load reads the process environment (and .env when present), applies
// defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	cfg, err := load()
	profile := os.Getenv("APP_ENV")
	if err != nil {
		recordConfigValidationEvent(context.Background(), profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.AppEnv, "success", "none")
	return cfg, nil
}

func load() (*Config, error) {
	var errs []error
	cfg := &Config{
		AppEnv:       strings.ToLower(getString("APP_ENV", EnvDevelopment)),
		ServiceName:  getString("SERVICE_NAME", "stack-api"),
		CookieSecret: os.Getenv("COOKIE_SECRET"),
		AdminAPIKey:  os.Getenv("EXTERNAL_ADMIN_API_KEY"),
		CORSOrigins:  getList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		LogLevel:     getString("LOG_LEVEL", "info"),

		OTELServiceName:          getString("OTEL_SERVICE_NAME", "stack-api"),
		OTELExporterOTLPEndpoint: getString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
	cfg.OTELEnvironment = getString("OTEL_ENVIRONMENT", cfg.AppEnv)

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"PORT", 8081, &cfg.Port},
		{"DATABASE_MAX_CONNS", 8, &cfg.DatabaseMaxConns},
		{"WORKER_CONCURRENCY", 32, &cfg.WorkerConcurrency},
	}
	for _, v := range ints {
		n, err := getInt(v.key, v.fallback)
		if err != nil {
			errs = append(errs, err)
		}
		*v.dst = n
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"AUTH_STORE_TIMEOUT", 2 * time.Second, &cfg.AuthStoreTimeout},
		{"PROFILE_CACHE_TTL", time.Minute, &cfg.ProfileCacheTTL},
		{"READ_HEADER_TIMEOUT", 5 * time.Second, &cfg.ReadHeaderTimeout},
		{"SHUTDOWN_TIMEOUT", 15 * time.Second, &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_TIMEOUT", 10 * time.Second, &cfg.ShutdownHTTPTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", 15 * time.Second, &cfg.OTELMetricsExportInterval},
		{"WORKER_POLL_INTERVAL", 5 * time.Second, &cfg.WorkerPollInterval},
		{"WORKER_MAINTENANCE_INTERVAL", time.Minute, &cfg.WorkerMaintenanceInterval},
		{"WORKER_STUCK_AFTER", 5 * time.Minute, &cfg.WorkerStuckAfter},
		{"WORKER_LONG_RUNNING_STUCK_AFTER", time.Hour, &cfg.WorkerLongRunningStuck},
	}
	for _, v := range durations {
		d, err := getDuration(v.key, v.fallback)
		if err != nil {
			errs = append(errs, err)
		}
		*v.dst = d
	}

	bools := []struct {
		key      string
		fallback bool
		dst      *bool
	}{
		{"OTEL_EXPORTER_OTLP_INSECURE", true, &cfg.OTELExporterOTLPInsecure},
		{"OTEL_METRICS_ENABLED", false, &cfg.OTELMetricsEnabled},
		{"OTEL_TRACING_ENABLED", false, &cfg.OTELTracingEnabled},
		{"OTEL_LOGS_ENABLED", false, &cfg.OTELLogsEnabled},
	}
	for _, v := range bools {
		b, err := getBool(v.key, v.fallback)
		if err != nil {
			errs = append(errs, err)
		}
		*v.dst = b
	}

	limit, err := getInt("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RequestBodyLimit = int64(limit)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the struct tags. Messages name the environment variable
// that needs fixing.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// IsProduction is the single switch for rate limit enforcement.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func isValidEnvironment(env string) bool {
	switch env {
	case EnvDevelopment, EnvLocal, EnvProduction, EnvStaging, EnvTest:
		return true
	}
	return false
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, nil
	}
	seconds, err := strconv.Atoi(val)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: invalid duration %q", key, val)
	}
	return time.Duration(seconds) * time.Second, nil
}
