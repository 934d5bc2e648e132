package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	validationCounterOnce sync.Once
	validationCounter     metric.Int64Counter
)

// recordConfigValidationEvent uses the global meter provider, which is a no-op
// until observability is initialised. Load runs before that, so only events
// from later reloads or tests with a real provider are exported.
func recordConfigValidationEvent(ctx context.Context, env, outcome, errorClass string) {
	validationCounterOnce.Do(func() {
		counter, err := otel.Meter("stack-api").Int64Counter(
			"config.validation.events",
			metric.WithDescription("Configuration load attempts by outcome"),
		)
		if err == nil {
			validationCounter = counter
		}
	})
	if validationCounter == nil {
		return
	}
	validationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("app_env", normalizeConfigProfile(env)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", errorClass),
	))
}

// normalizeConfigProfile keeps the attribute cardinality bounded to the
// known environments.
func normalizeConfigProfile(env string) string {
	v := strings.TrimSpace(strings.ToLower(env))
	if v == "" {
		return "unset"
	}
	if !isValidEnvironment(v) {
		return "unknown"
	}
	return v
}

func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "validate config:") && strings.Contains(msg, "is required"):
		return "missing"
	case strings.Contains(msg, "validate config:"):
		return "validation"
	case strings.Contains(msg, "parse "):
		return "parse"
	default:
		return "load"
	}
}
