// Package kv provides the small key-value persistence layer the session guard
// writes its state to.
//
// # Backends
//
// Two implementations of [Store] are provided:
//
//   - [RedisStore]: a Redis-backed store for shared or server-side deployments.
//   - [SQLiteStore]: a single-file SQLite store for device-local persistence.
//
// Values are opaque strings. Keys never expire; callers delete what they own.
//
// # What this package must NOT do
//
//   - Import sessionguard, session, or any internal package (no upward imports).
//   - Interpret the values it stores.
package kv
