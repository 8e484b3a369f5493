// Package middleware exposes client-side HTTP adapters used when talking to the
// accounts backend and the rest of the API.
//
// # Transports
//
//   - [Auth]: attaches "Authorization: Token <token>" from a [TokenSource].
//   - [RequestID]: attaches an X-Request-ID header, generated when the
//     request context carries none.
//
// # Architecture boundaries
//
// This package translates session state into HTTP headers. It does NOT decide
// whether a session is valid, and it never logs header values.
//
// # What this package must NOT do
//
//   - Import sessionguard (the Guard satisfies [TokenSource] structurally).
//   - Mutate the caller's *http.Request; requests are cloned first.
package middleware
