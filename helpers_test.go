package sessionguard

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SmarTanom/sessionguard/internal/backendtest"
	"github.com/SmarTanom/sessionguard/kv"
	"github.com/SmarTanom/sessionguard/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	demoEmail    = "demo@smartanom.com"
	demoPassword = "demo-password"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	guard   *Guard
	fake    *backendtest.Server
	server  *httptest.Server
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	clock   *testClock
	cfg     Config
	builder func() *Builder
}

type envOption func(*envSettings)

type envSettings struct {
	cfg      Config
	fakeOpts []backendtest.Option
	sink     AuditSink
	store    func(kv.Store) kv.Store
}

func withConfig(mutate func(*Config)) envOption {
	return func(s *envSettings) { mutate(&s.cfg) }
}

func withFakeOptions(opts ...backendtest.Option) envOption {
	return func(s *envSettings) { s.fakeOpts = append(s.fakeOpts, opts...) }
}

func withSink(sink AuditSink) envOption {
	return func(s *envSettings) { s.sink = sink }
}

func withStoreWrapper(wrap func(kv.Store) kv.Store) envOption {
	return func(s *envSettings) { s.store = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	settings := envSettings{cfg: defaultConfig()}
	settings.cfg.Metrics.Enabled = true
	settings.cfg.Metrics.EnableLatencyHistograms = true
	for _, opt := range opts {
		opt(&settings)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fake := backendtest.New(settings.fakeOpts...)
	fake.AddUser(session.User{Email: demoEmail, Name: "Demo User", Contact: "0812000000"}, demoPassword, true)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	cfg := settings.cfg
	cfg.Backend.BaseURL = srv.URL

	env := &testEnv{
		fake:   fake,
		server: srv,
		mr:     mr,
		rdb:    rdb,
		clock:  newTestClock(),
		cfg:    cfg,
	}
	env.builder = func() *Builder {
		var store kv.Store = kv.NewRedisStore(rdb, "")
		if settings.store != nil {
			store = settings.store(store)
		}
		b := New().
			WithConfig(cfg).
			WithStore(store).
			WithHTTPClient(srv.Client()).
			WithClock(env.clock.Now)
		if settings.sink != nil {
			b = b.WithAuditSink(settings.sink)
		}
		return b
	}
	env.guard = env.newGuard(t)
	return env
}

// newGuard builds another Guard over the same store and backend, as a fresh
// process would.
func (e *testEnv) newGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := e.builder().Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func (e *testEnv) loginCalls() int {
	return e.fake.Calls(backendtest.EndpointLogin)
}

func (e *testEnv) failLogin(t *testing.T, times int) *LoginResult {
	t.Helper()
	var res *LoginResult
	for i := 0; i < times; i++ {
		var err error
		res, err = e.guard.LoginWithResult(context.Background(), demoEmail, "wrong-password")
		if err == nil {
			t.Fatalf("attempt %d: expected failure", i+1)
		}
	}
	return res
}

// flakyStore fails writes while failSet is true.
type flakyStore struct {
	kv.Store
	mu      sync.Mutex
	failSet bool
}

var errFlaky = errors.New("disk full")

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	s.failSet = v
	s.mu.Unlock()
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return errFlaky
	}
	return s.Store.Set(ctx, key, value)
}
