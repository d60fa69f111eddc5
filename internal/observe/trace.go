package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/earsense"

// Span attribute keys shared by every EarSense span.
const (
	SessionKey  = attribute.Key("earsense.session.id")
	ProfileKey  = attribute.Key("earsense.profile")
	DetectorKey = attribute.Key("earsense.detector")
)

// Scope names the session, profile and detector work belongs to. It travels
// in the context so spans and log lines started further down carry it
// without each caller adding the attributes again.
type Scope struct {
	Session  string
	Profile  string
	Detector string
}

type scopeKey struct{}

// WithScope returns ctx carrying s merged over the scope already in ctx.
// Empty fields of s keep the outer value.
func WithScope(ctx context.Context, s Scope) context.Context {
	cur := ScopeFrom(ctx)
	if s.Session != "" {
		cur.Session = s.Session
	}
	if s.Profile != "" {
		cur.Profile = s.Profile
	}
	if s.Detector != "" {
		cur.Detector = s.Detector
	}
	return context.WithValue(ctx, scopeKey{}, cur)
}

// ScopeFrom returns the scope carried by ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// Attributes returns the span attributes of the non-empty fields.
func (s Scope) Attributes() []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, 3)
	if s.Session != "" {
		out = append(out, SessionKey.String(s.Session))
	}
	if s.Profile != "" {
		out = append(out, ProfileKey.String(s.Profile))
	}
	if s.Detector != "" {
		out = append(out, DetectorKey.String(s.Detector))
	}
	return out
}

// Tracer returns the EarSense tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span tagged with the [Scope] of ctx. Attributes in opts
// are added after the scope and win on conflict. The caller must end the
// span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if attrs := ScopeFrom(ctx).Attributes(); len(attrs) > 0 {
		opts = append([]trace.SpanStartOption{trace.WithAttributes(attrs...)}, opts...)
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the trace and span IDs of ctx and
// the fields of its [Scope] attached.
func Logger(ctx context.Context) *slog.Logger {
	var args []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	s := ScopeFrom(ctx)
	if s.Session != "" {
		args = append(args, slog.String("session_id", s.Session))
	}
	if s.Profile != "" {
		args = append(args, slog.String("profile", s.Profile))
	}
	if s.Detector != "" {
		args = append(args, slog.String("detector", s.Detector))
	}
	if len(args) == 0 {
		return slog.Default()
	}
	return slog.Default().With(args...)
}
