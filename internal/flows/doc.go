// Package flows contains the orchestration behind every Guard operation.
//
// Each Run* function receives a typed dependency struct of function fields
// and returns its outcome without touching anything the struct does not
// hand it. The Guard owns the store, limiter, HTTP client and in-memory
// session; flows only sequence calls between them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import sessionguard (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through the deps.
package flows
