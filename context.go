package sessionguard

import (
	"context"

	"github.com/SmarTanom/sessionguard/middleware"
)

// WithRequestID attaches a correlation id to ctx. Backend requests made with
// ctx carry it in the X-Request-ID header and audit events record it. When
// absent, a fresh uuid is generated per operation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return middleware.WithRequestID(ctx, id)
}

func requestContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, _ = middleware.EnsureRequestID(ctx)
	return ctx
}
