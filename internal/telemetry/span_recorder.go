package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanRecorder is a synchronous exporter that keeps every finished span so
// tests can assert on dispatch and repository activity.
type SpanRecorder struct {
	mu    sync.Mutex
	spans []sdktrace.ReadOnlySpan
}

func NewSpanRecorder() *SpanRecorder {
	return &SpanRecorder{}
}

func (r *SpanRecorder) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	r.mu.Lock()
	r.spans = append(r.spans, spans...)
	r.mu.Unlock()
	return nil
}

func (r *SpanRecorder) Shutdown(context.Context) error { return nil }

// Spans returns the recorded spans matching every filter, in export order.
func (r *SpanRecorder) Spans(filters ...SpanFilter) []sdktrace.ReadOnlySpan {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []sdktrace.ReadOnlySpan
next:
	for _, span := range r.spans {
		for _, keep := range filters {
			if !keep(span) {
				continue next
			}
		}
		out = append(out, span)
	}
	return out
}

func (r *SpanRecorder) Reset() {
	r.mu.Lock()
	r.spans = nil
	r.mu.Unlock()
}

type SpanFilter func(sdktrace.ReadOnlySpan) bool

func Named(name string) SpanFilter {
	return func(s sdktrace.ReadOnlySpan) bool { return s.Name() == name }
}

// Operation matches the "operation" attribute repositories and caches set,
// e.g. "database.write" or "cache.read".
func Operation(operation string) SpanFilter {
	return WithAttribute("operation", operation)
}

func WithAttribute(key, value string) SpanFilter {
	return func(s sdktrace.ReadOnlySpan) bool {
		v, ok := SpanAttribute(s, key)
		return ok && v == value
	}
}

// SpanAttribute returns the string form of the attribute key on span.
func SpanAttribute(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			return attr.Value.Emit(), true
		}
	}
	return "", false
}

// InitRecordingTracing installs a global provider that exports to recorder
// as each span ends.
func InitRecordingTracing(recorder *SpanRecorder) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(recorder),
		sdktrace.WithResource(resource.Empty()),
	)
	otel.SetTracerProvider(tp)
	return tp
}
