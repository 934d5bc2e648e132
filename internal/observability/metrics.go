package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stackhq/stack-api/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type AppMetrics struct {
	authResolution metric.Int64Counter
	authLogin      metric.Int64Counter
	sessionRevoke  metric.Int64Counter
	permission     metric.Int64Counter
	rateLimit      metric.Int64Counter
	securityBypass metric.Int64Counter
	csrfRejection  metric.Int64Counter
	repository     metric.Int64Counter
	jobExecution   metric.Int64Counter
	jobMaintenance metric.Int64Counter
	jobsUnlocked   metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

// InitMetrics installs the global meter provider. With metrics disabled the
// provider has no reader, so recording is cheap and nothing is exported.
func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	var mp *sdkmetric.MeterProvider
	if cfg.OTELMetricsEnabled {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
		if cfg.OTELExporterOTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create metric resource: %w", err)
		}
		reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	} else {
		mp = sdkmetric.NewMeterProvider()
		logger.Info("otel metrics disabled")
	}
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(cfg.OTELServiceName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	m := &AppMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authResolution, "auth.resolution.outcomes"},
		{&m.authLogin, "auth.login.attempts"},
		{&m.sessionRevoke, "auth.session.revocations"},
		{&m.permission, "auth.permission.decisions"},
		{&m.rateLimit, "ratelimit.decisions"},
		{&m.securityBypass, "security.bypass.events"},
		{&m.csrfRejection, "security.csrf.rejections"},
		{&m.repository, "repository.operations"},
		{&m.jobExecution, "jobs.executions"},
		{&m.jobMaintenance, "jobs.maintenance.ticks"},
		{&m.jobsUnlocked, "jobs.maintenance.unlocked"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthResolution(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.authResolution.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordAuthLogin(ctx context.Context, status string) {
	if m := current(); m != nil {
		m.authLogin.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordSessionRevocation(ctx context.Context, scope string) {
	if m := current(); m != nil {
		m.sessionRevoke.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
	}
}

func RecordPermissionDecision(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.permission.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordRateLimitDecision(ctx context.Context, limiter, outcome string) {
	if m := current(); m != nil {
		m.rateLimit.Add(ctx, 1, metric.WithAttributes(
			attribute.String("limiter", limiter),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordSecurityBypassEvent(ctx context.Context, reason, scope string) {
	if m := current(); m != nil {
		m.securityBypass.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.String("scope", scope),
		))
	}
}

func RecordCSRFRejection(ctx context.Context, pathGroup, reason string) {
	if m := current(); m != nil {
		m.csrfRejection.Add(ctx, 1, metric.WithAttributes(
			attribute.String("path_group", pathGroup),
			attribute.String("reason", reason),
		))
	}
}

func RecordRepositoryOperation(ctx context.Context, repo, op, outcome string) {
	if m := current(); m != nil {
		m.repository.Add(ctx, 1, metric.WithAttributes(
			attribute.String("repository", repo),
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordJobExecution(ctx context.Context, task, outcome string) {
	if m := current(); m != nil {
		m.jobExecution.Add(ctx, 1, metric.WithAttributes(
			attribute.String("task", task),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordJobMaintenance(ctx context.Context, outcome string, unlocked int64) {
	m := current()
	if m == nil {
		return
	}
	m.jobMaintenance.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if unlocked > 0 {
		m.jobsUnlocked.Add(ctx, unlocked)
	}
}
