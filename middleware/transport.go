package middleware

import (
	"net/http"
	"strings"
)

// SchemeToken is the Authorization scheme used by the accounts backend.
const SchemeToken = "Token"

// TokenSource yields the current bearer token, or "" when unauthenticated.
type TokenSource interface {
	Token() string
}

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Auth wraps base so every request carries the token from src. Requests that
// already have an Authorization header, or made while src has no token, are
// sent unchanged.
func Auth(base http.RoundTripper, src TokenSource) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if src == nil || req.Header.Get("Authorization") != "" {
			return base.RoundTrip(req)
		}
		token := src.Token()
		if token == "" {
			return base.RoundTrip(req)
		}
		out := req.Clone(req.Context())
		SetAuthorization(out, token)
		return base.RoundTrip(out)
	})
}

// SetAuthorization sets the token Authorization header on req.
func SetAuthorization(req *http.Request, token string) {
	req.Header.Set("Authorization", SchemeToken+" "+token)
}

// TokenFromHeader extracts the token from an Authorization header value using
// the "Token" scheme. "Bearer" is accepted as well.
func TokenFromHeader(value string) (string, bool) {
	for _, scheme := range []string{SchemeToken + " ", "Bearer "} {
		if strings.HasPrefix(value, scheme) {
			token := strings.TrimSpace(value[len(scheme):])
			if token == "" {
				return "", false
			}
			return token, true
		}
	}
	return "", false
}
