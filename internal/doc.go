// Package internal contains helpers that are private to sessionguard.
//
// # Sub-packages
//
//   - backend: HTTP client for the accounts API (login, register, activate, profile)
//   - backendtest: chi-based fake accounts API used by tests and the demo backend
//   - flows: orchestrators for every Guard operation
//   - limiters: the per-email failed-login lockout limiter
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessionguard API.
//   - Be imported by any package outside the sessionguard module.
package internal
