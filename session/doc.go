// Package session persists the authenticated identity and its bearer token in
// a [kv.Store].
//
// # Layout
//
// A session occupies exactly two keys: the user record (JSON) and the token
// (raw string). Key names are supplied by the caller so they can match what
// other clients of the same store expect ("user" and "token" by default).
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session]/[User] model. It does NOT
// talk to the backend, track failed logins, or decide when a session is
// valid; those responsibilities belong to the Guard.
//
// # What this package must NOT do
//
//   - Import sessionguard or any internal package (no upward imports).
//   - Log or otherwise expose the token.
package session
