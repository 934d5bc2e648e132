package observability

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		base = append(base, "trace_id", sc.TraceID().String())
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}
