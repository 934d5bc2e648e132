package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stackhq/stack-api/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Runtime{MeterProvider: mp, TracerProvider: tp, LoggerProvider: lp}, nil
}

// Shutdown flushes every provider; the log provider goes last so shutdown
// logging from the others is still exported.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.MeterProvider != nil {
		if err := r.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.TracerProvider != nil {
		if err := r.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.LoggerProvider != nil {
		if err := r.LoggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
