// Package limiters provides the per-email failed-login lockout limiter.
//
// # Policy
//
// [LockoutLimiter] counts failed logins per normalized email. When the count
// reaches the threshold the record is locked for the configured window,
// measured from the last failed attempt. Expiry is lazy: nothing runs in the
// background, and a locked record is only rewritten to a clean one when it is
// next consulted after the window has elapsed.
//
// All methods are nil-safe: calling any method on a nil receiver is a no-op.
//
// # Architecture boundaries
//
// The limiter owns its key namespace ("lockout_<email>" by default) in a
// [kv.Store]. Thresholds come from [LockoutConfig] supplied at construction.
//
// # What this package must NOT do
//
//   - Import sessionguard or any sibling internal package.
//   - Decide user-facing messages; flow functions do that.
package limiters
