// Package backend is the HTTP client for the accounts API.
//
// Every call is bounded by the configured timeout on top of the caller's
// context and carries an X-Request-ID header. Failures are classified into
// [ErrTimeout], [ErrNetwork], [ErrMalformedResponse] and [*StatusError] so the
// flows can map them onto user-facing outcomes.
package backend
