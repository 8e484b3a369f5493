package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SmarTanom/sessionguard/kv"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newLockoutTest(t *testing.T) (*LockoutLimiter, *testClock, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := NewLockoutLimiter(kv.NewRedisStore(rdb, ""), LockoutConfig{
		Enabled:   true,
		Threshold: 5,
		Window:    24 * time.Hour,
		KeyPrefix: "lockout_",
	}, clock.Now)
	return l, clock, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestLockoutWarningThenLocked(t *testing.T) {
	l, clock, _, done := newLockoutTest(t)
	defer done()
	ctx := context.Background()
	email := "demo@smartanom.com"

	for i := 1; i <= 4; i++ {
		state, err := l.RecordFailure(ctx, email)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if state.Locked || state.Attempts != i {
			t.Fatalf("failure %d: unexpected state %+v", i, state)
		}
		if got := state.Remaining(5); got != 5-i {
			t.Fatalf("failure %d: remaining = %d", i, got)
		}
		clock.Advance(time.Minute)
	}

	state, err := l.RecordFailure(ctx, email)
	if err != nil {
		t.Fatalf("fifth failure: %v", err)
	}
	if !state.Locked || !state.Triggered || state.RetryAfter != 24*time.Hour {
		t.Fatalf("fifth failure should lock: %+v", state)
	}

	clock.Advance(90 * time.Minute)
	state, err = l.Check(ctx, email)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !state.Locked {
		t.Fatal("expected record to stay locked inside the window")
	}
	if want := 24*time.Hour - 90*time.Minute; state.RetryAfter != want {
		t.Fatalf("retry after = %v, want %v", state.RetryAfter, want)
	}
}

func TestLockoutLazyExpiryRewritesRecord(t *testing.T) {
	l, clock, mr, done := newLockoutTest(t)
	defer done()
	ctx := context.Background()
	email := "demo@smartanom.com"

	for i := 0; i < 5; i++ {
		if _, err := l.RecordFailure(ctx, email); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	clock.Advance(24 * time.Hour)

	// Nothing changes in storage until the record is consulted.
	rec, _, err := l.Record(ctx, email)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !rec.Locked || rec.Attempts != 5 {
		t.Fatalf("record changed before check: %+v", rec)
	}

	state, err := l.Check(ctx, email)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if state.Locked || !state.Expired || state.Attempts != 0 {
		t.Fatalf("expected lazy unlock, got %+v", state)
	}

	raw, err := mr.Get("lockout_" + email)
	if err != nil {
		t.Fatalf("raw record: %v", err)
	}
	rec, _, _ = l.Record(ctx, email)
	if rec.Locked || rec.Attempts != 0 {
		t.Fatalf("stored record not reset: %s", raw)
	}
}

func TestLockoutFailureAfterExpiryStartsOver(t *testing.T) {
	l, clock, _, done := newLockoutTest(t)
	defer done()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.RecordFailure(ctx, "a@b.c")
	}
	clock.Advance(25 * time.Hour)

	state, err := l.RecordFailure(ctx, "a@b.c")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if state.Attempts != 1 || state.Locked {
		t.Fatalf("expected fresh count, got %+v", state)
	}
}

func TestLockoutResetOnlyTouchesExistingRecords(t *testing.T) {
	l, _, mr, done := newLockoutTest(t)
	defer done()
	ctx := context.Background()

	if err := l.Reset(ctx, "clean@b.c"); err != nil {
		t.Fatalf("reset clean: %v", err)
	}
	if mr.Exists("lockout_clean@b.c") {
		t.Fatal("reset must not create a record for a clean email")
	}

	for i := 0; i < 3; i++ {
		_, _ = l.RecordFailure(ctx, "warn@b.c")
	}
	if err := l.Reset(ctx, "warn@b.c"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	state, _ := l.Check(ctx, "warn@b.c")
	if state.Attempts != 0 || state.Locked {
		t.Fatalf("expected clean state after reset, got %+v", state)
	}
	if !mr.Exists("lockout_warn@b.c") {
		t.Fatal("reset record should persist with zero attempts")
	}
}

func TestLockoutCorruptRecordTreatedAsClean(t *testing.T) {
	l, _, mr, done := newLockoutTest(t)
	defer done()

	_ = mr.Set("lockout_x@y.z", "{oops")
	state, err := l.Check(context.Background(), "x@y.z")
	if err != nil || state.Locked || state.Attempts != 0 {
		t.Fatalf("corrupt record: state=%+v err=%v", state, err)
	}
}

func TestLockoutUnavailable(t *testing.T) {
	l, _, mr, done := newLockoutTest(t)
	defer done()
	mr.Close()

	if _, err := l.Check(context.Background(), "a@b.c"); !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
	if _, err := l.RecordFailure(context.Background(), "a@b.c"); !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
}

func TestLockoutDisabledAndNilSafe(t *testing.T) {
	var nilLimiter *LockoutLimiter
	if _, err := nilLimiter.RecordFailure(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}

	l := NewLockoutLimiter(nil, LockoutConfig{Enabled: false}, nil)
	state, err := l.RecordFailure(context.Background(), "a@b.c")
	if err != nil || state.Attempts != 0 {
		t.Fatalf("disabled limiter: state=%+v err=%v", state, err)
	}
}
