package ctxutil

import "context"

const (
	SurfaceAPI = "api"
	SurfaceCLI = "cli"
)

type requestMetaKey struct{}

// RequestMeta follows one API request or CLI invocation down to the generation calls.
type RequestMeta struct {
	TraceID   string
	RequestID string
	Surface   string
}

func WithRequestMeta(ctx context.Context, m *RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

func RequestMetaFrom(ctx context.Context) *RequestMeta {
	if ctx == nil {
		return nil
	}
	if m, ok := ctx.Value(requestMetaKey{}).(*RequestMeta); ok {
		return m
	}
	return nil
}

// LogFields returns the non-empty ids as logger key/value pairs.
func LogFields(ctx context.Context) []any {
	m := RequestMetaFrom(ctx)
	if m == nil {
		return nil
	}
	var kv []any
	if m.Surface != "" {
		kv = append(kv, "surface", m.Surface)
	}
	if m.TraceID != "" {
		kv = append(kv, "trace_id", m.TraceID)
	}
	if m.RequestID != "" {
		kv = append(kv, "request_id", m.RequestID)
	}
	return kv
}
