package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/stackhq/stack-api/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: JSON to out, plus an OTLP log export
// when logs are enabled. The returned provider is nil when export is off.
func NewLogger(ctx context.Context, cfg *config.Config, out io.Writer) (*slog.Logger, *sdklog.LoggerProvider, error) {
	handler := slog.Handler(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}))
	if !cfg.OTELLogsEnabled {
		return slog.New(handler).With("service", cfg.ServiceName, "env", cfg.AppEnv), nil, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp log exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create log resource: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	bridge := otelslog.NewHandler(cfg.OTELServiceName, otelslog.WithLoggerProvider(lp))
	handler = fanoutHandler{handlers: []slog.Handler{handler, bridge}}
	return slog.New(handler).With("service", cfg.ServiceName, "env", cfg.AppEnv), lp, nil
}

type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: out}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: out}
}
