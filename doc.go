// Package sessionguard keeps the signed-in user of a client application: the
// current user, the backend token, and a per-email failed-login counter that
// locks an address out for a day after too many bad passwords.
//
// A [Guard] is built through [Builder.Build] and is safe to call from
// multiple goroutines. It talks to a Django accounts API over HTTP and
// persists its state in a key-value store (Redis or a local SQLite file).
//
// # Architecture boundaries
//
// sessionguard is the public surface. It exposes [Guard], [Builder],
// [Config] and value types (LoginResult, LockoutStatus, SessionInfo, etc.).
// Flow orchestration, the HTTP client and the lockout limiter live under
// internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Log passwords or tokens, or emails in clear text.
//   - Retry failed logins or unlock accounts on a timer; the lockout ends
//     lazily on the next check.
//   - Import any sub-package that re-imports sessionguard (no import cycles).
package sessionguard
