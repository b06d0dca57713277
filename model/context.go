package model

import "context"

// RequestContext carries per-request transport details for the lifetime of
// one invocation. Identity is the gateway's concern; only correlation and
// client details travel this far. Immutable after construction and safe for
// concurrent reads.
type RequestContext struct {
	CorrelationID string
	ConnectionID  string
	SourceIP      string
	UserAgent     string
	TraceID       string
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or
// returns nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
