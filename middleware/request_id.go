package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID is the correlation header sent with every backend request.
const HeaderRequestID = "X-Request-ID"

type requestIDContextKey struct{}

// WithRequestID attaches a caller-chosen correlation id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id attached with [WithRequestID].
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// EnsureRequestID returns ctx unchanged when it already carries an id and
// otherwise attaches a fresh uuid. The id in effect is returned alongside.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// RequestID wraps base so every request carries [HeaderRequestID].
func RequestID(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(HeaderRequestID) != "" {
			return base.RoundTrip(req)
		}
		_, id := EnsureRequestID(req.Context())
		out := req.Clone(req.Context())
		out.Header.Set(HeaderRequestID, id)
		return base.RoundTrip(out)
	})
}
