package sessionguard

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SmarTanom/sessionguard/middleware"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), s)
}

func collect(t *testing.T, sink *ChannelSink, n int) []AuditEvent {
	t.Helper()
	out := make([]AuditEvent, 0, n)
	for len(out) < n {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d audit events, got %d", n, len(out))
		}
	}
	return out
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newTestEnv(t)

	cfg := env.cfg
	cfg.Audit.Enabled = false
	g, err := env.builder().WithAuditSink(sink).WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer g.Close()

	_ = g.Login(context.Background(), demoEmail, "wrong-password")
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditLoginEventsMaskEmailAndHidePassword(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, withSink(sink))
	ctx := WithRequestID(context.Background(), "req-audit")

	_ = env.guard.Login(ctx, demoEmail, "super-secret-password")
	ev := collect(t, sink, 1)[0]

	if ev.EventType != auditEventLoginFailure || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Email != "d***@*********.com" {
		t.Fatalf("expected masked email, got %q", ev.Email)
	}
	if ev.RequestID != "req-audit" {
		t.Fatalf("expected request id, got %q", ev.RequestID)
	}
	if ev.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("expected invalid_credentials, got %q", ev.Error)
	}
	for _, v := range ev.Metadata {
		if strings.Contains(v, "super-secret-password") {
			t.Fatal("sensitive password leaked in metadata")
		}
	}
}

func TestAuditLockoutLifecycleEvents(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEnv(t, withSink(sink))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = env.guard.Login(ctx, demoEmail, "wrong-password")
	}
	_ = env.guard.Login(ctx, demoEmail, demoPassword)
	env.clock.Advance(24 * time.Hour)
	_ = env.guard.Login(ctx, demoEmail, demoPassword)
	_ = env.guard.Logout(ctx)

	events := collect(t, sink, 9)
	var got []string
	for _, ev := range events {
		got = append(got, ev.EventType)
	}
	want := []string{
		auditEventLoginFailure,
		auditEventLoginFailure,
		auditEventLoginFailure,
		auditEventLoginFailure,
		auditEventLockoutTriggered,
		auditEventLoginLocked,
		auditEventLockoutExpired,
		auditEventLoginSuccess,
		auditEventLogout,
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		Email:     "d***@*********.com",
		Success:   true,
	})

	if !buf.Contains("login_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"email":"d***@*********.com"`) {
		t.Fatal("expected JSON log line to contain masked email")
	}
}

func TestAuditSlogSinkWritesStructuredRecord(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventLockoutTriggered,
		Email:     "d***@*********.com",
		Error:     string(auditErrAccountLocked),
		Metadata:  map[string]string{"attempts": "5"},
	})

	for _, want := range []string{`"level":"WARN"`, `"event_type":"lockout_triggered"`, `"attempts":"5"`, `"error":"account_locked"`} {
		if !buf.Contains(want) {
			t.Fatalf("expected log record to contain %s", want)
		}
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
}

func TestAuditDispatcherFiltersByEventType(t *testing.T) {
	sink := NewChannelSink(8)
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 8,
		DropIfFull: true,
		Events:     []string{auditEventLockoutTriggered},
	}, sink)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: auditEventLockoutTriggered})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	dispatcher.Close()

	events := collect(t, sink, 1)
	if events[0].EventType != auditEventLockoutTriggered {
		t.Fatalf("expected only lockout_triggered, got %s", events[0].EventType)
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected extra event %s", ev.EventType)
	default:
	}
	if got := dispatcher.Skipped(); got != 2 {
		t.Fatalf("expected 2 skipped events, got %d", got)
	}
}

func TestAuditDispatcherStampsRequestID(t *testing.T) {
	sink := NewChannelSink(4)
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)

	ctx := middleware.WithRequestID(context.Background(), "req-42")
	dispatcher.Emit(ctx, AuditEvent{EventType: auditEventLogout})
	dispatcher.Emit(ctx, AuditEvent{EventType: auditEventLogout, RequestID: "caller-set"})
	dispatcher.Close()

	events := collect(t, sink, 2)
	if events[0].RequestID != "req-42" {
		t.Fatalf("expected request id from context, got %q", events[0].RequestID)
	}
	if events[1].RequestID != "caller-set" {
		t.Fatalf("expected explicit request id kept, got %q", events[1].RequestID)
	}
}

func TestAuditDispatcherCountsDropsPerType(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	// The worker may hold one event while the buffer holds another, so
	// send enough that at least three are dropped.
	for i := 0; i < 5; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
	}

	byType := dispatcher.DroppedByType()
	if byType[auditEventLoginFailure] != dispatcher.Dropped() || dispatcher.Dropped() < 3 {
		t.Fatalf("expected per-type drops to match total (>=3), got %v vs %d", byType, dispatcher.Dropped())
	}
}

func TestAuditLockoutOnlyFilterThroughGuard(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t,
		withSink(sink),
		withConfig(func(c *Config) { c.Audit.Events = []string{auditEventLockoutTriggered} }),
	)

	env.failLogin(t, env.cfg.Lockout.Threshold)
	_ = env.guard.Close()

	events := collect(t, sink, 1)
	if events[0].EventType != auditEventLockoutTriggered {
		t.Fatalf("expected lockout_triggered, got %s", events[0].EventType)
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event %s passed the filter", ev.EventType)
	default:
	}
	if dropped := env.guard.AuditDroppedByType(); len(dropped) != 0 {
		t.Fatalf("expected no drops, got %v", dropped)
	}
}

func TestConfigRejectsUnknownAuditEvent(t *testing.T) {
	cfg := defaultConfig()
	cfg.Audit.Events = []string{auditEventLogout, "password_reset"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown audit event type to fail validation")
	}
}
