package limiters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SmarTanom/sessionguard/kv"
)

// LockoutConfig holds configuration for the failed-login lockout limiter.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
	KeyPrefix string
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutRecord is the persisted per-email record.
type LockoutRecord struct {
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
	Locked    bool      `json:"locked"`
}

// LockoutState is the evaluated view of a record at a point in time.
type LockoutState struct {
	Attempts    int
	Locked      bool
	LastAttempt time.Time
	RetryAfter  time.Duration
	// Expired is set when this read performed the lazy Locked -> Clean
	// transition.
	Expired bool
	// Triggered is set by RecordFailure when this failure reached the
	// threshold.
	Triggered bool
}

// Remaining returns how many failures are left before the lock engages.
func (s LockoutState) Remaining(threshold int) int {
	if r := threshold - s.Attempts; r > 0 {
		return r
	}
	return 0
}

// LockoutLimiter tracks failed login attempts per email.
type LockoutLimiter struct {
	store  kv.Store
	config LockoutConfig
	now    func() time.Time
}

// NewLockoutLimiter creates a new lockout limiter. A nil now uses time.Now.
func NewLockoutLimiter(store kv.Store, cfg LockoutConfig, now func() time.Time) *LockoutLimiter {
	if now == nil {
		now = time.Now
	}
	return &LockoutLimiter{store: store, config: cfg, now: now}
}

func (l *LockoutLimiter) key(email string) string {
	return l.config.KeyPrefix + email
}

func (l *LockoutLimiter) active(email string) bool {
	return l != nil && l.config.Enabled && email != ""
}

// Check evaluates the record for email. A lock whose window has elapsed is
// rewritten to a clean record as a side effect of this read.
func (l *LockoutLimiter) Check(ctx context.Context, email string) (LockoutState, error) {
	if !l.active(email) {
		return LockoutState{}, nil
	}

	rec, found, err := l.load(ctx, email)
	if err != nil || !found {
		return LockoutState{}, err
	}

	now := l.now()
	if l.lockedAt(rec) {
		elapsed := now.Sub(rec.Timestamp)
		if elapsed < l.config.Window {
			return LockoutState{
				Attempts:    rec.Attempts,
				Locked:      true,
				LastAttempt: rec.Timestamp,
				RetryAfter:  l.config.Window - elapsed,
			}, nil
		}

		cleared := LockoutRecord{Attempts: 0, Timestamp: rec.Timestamp, Locked: false}
		if err := l.save(ctx, email, cleared); err != nil {
			return LockoutState{}, err
		}
		return LockoutState{LastAttempt: rec.Timestamp, Expired: true}, nil
	}

	return LockoutState{Attempts: rec.Attempts, LastAttempt: rec.Timestamp}, nil
}

// RecordFailure increments the failure counter for email and locks the
// record once the threshold is reached.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, email string) (LockoutState, error) {
	if !l.active(email) {
		return LockoutState{}, nil
	}

	rec, _, err := l.load(ctx, email)
	if err != nil {
		return LockoutState{}, err
	}

	now := l.now()
	if l.lockedAt(rec) && now.Sub(rec.Timestamp) >= l.config.Window {
		rec = LockoutRecord{}
	}

	wasLocked := rec.Locked
	rec.Attempts++
	rec.Timestamp = now
	rec.Locked = rec.Attempts >= l.config.Threshold

	if err := l.save(ctx, email, rec); err != nil {
		return LockoutState{}, err
	}

	state := LockoutState{
		Attempts:    rec.Attempts,
		Locked:      rec.Locked,
		LastAttempt: rec.Timestamp,
		Triggered:   rec.Locked && !wasLocked,
	}
	if rec.Locked {
		state.RetryAfter = l.config.Window
	}
	return state, nil
}

// Reset zeroes the record for email after a successful login. Emails that
// never failed have no record and stay that way.
func (l *LockoutLimiter) Reset(ctx context.Context, email string) error {
	if !l.active(email) {
		return nil
	}

	rec, found, err := l.load(ctx, email)
	if err != nil || !found {
		return err
	}
	if rec.Attempts == 0 && !rec.Locked {
		return nil
	}

	return l.save(ctx, email, LockoutRecord{Attempts: 0, Timestamp: l.now(), Locked: false})
}

// Clear deletes the record for email entirely.
func (l *LockoutLimiter) Clear(ctx context.Context, email string) error {
	if !l.active(email) {
		return nil
	}
	if err := l.store.Delete(ctx, l.key(email)); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Record returns the raw stored record for email.
func (l *LockoutLimiter) Record(ctx context.Context, email string) (LockoutRecord, bool, error) {
	if !l.active(email) {
		return LockoutRecord{}, false, nil
	}
	return l.load(ctx, email)
}

func (l *LockoutLimiter) lockedAt(rec LockoutRecord) bool {
	return rec.Locked || rec.Attempts >= l.config.Threshold
}

// load treats an undecodable record as absent; the next failure overwrites it.
func (l *LockoutLimiter) load(ctx context.Context, email string) (LockoutRecord, bool, error) {
	raw, err := l.store.Get(ctx, l.key(email))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return LockoutRecord{}, false, nil
		}
		return LockoutRecord{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	var rec LockoutRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Attempts < 0 {
		return LockoutRecord{}, false, nil
	}
	return rec, true, nil
}

func (l *LockoutLimiter) save(ctx context.Context, email string, rec LockoutRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, l.key(email), string(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
