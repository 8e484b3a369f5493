package sessionguard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/SmarTanom/sessionguard/internal"
	"github.com/SmarTanom/sessionguard/internal/backend"
	"github.com/SmarTanom/sessionguard/internal/flows"
	"github.com/SmarTanom/sessionguard/internal/limiters"
	"github.com/SmarTanom/sessionguard/jwt"
	"github.com/SmarTanom/sessionguard/kv"
	"github.com/SmarTanom/sessionguard/middleware"
	"github.com/SmarTanom/sessionguard/session"
	"github.com/go-playground/validator/v10"
)

// Guard owns the signed-in session and the failed-login lockout.
type Guard struct {
	config   Config
	store    kv.Store
	sessions *session.Store
	lockout  *limiters.LockoutLimiter
	backend  *backend.Client
	base     *http.Client
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *Metrics
	audit    *auditDispatcher
	now      func() time.Time
	closers  []func() error

	// opMu serializes operations that read-modify-write the lockout record
	// or replace the session.
	opMu sync.Mutex

	mu      sync.RWMutex
	current session.Session
	authed  bool
}

// Login signs in with email and password. It returns nil on success and an
// *AuthError otherwise; the error's message is suitable for display.
func (g *Guard) Login(ctx context.Context, email, password string) error {
	_, err := g.LoginWithResult(ctx, email, password)
	return err
}

// LoginWithResult is Login returning the full outcome, including the
// remaining attempts and, when locked, the time until the lock lifts.
//
// A locked email fails without contacting the backend. Timeouts, network
// failures and malformed responses leave the failure counter unchanged.
func (g *Guard) LoginWithResult(ctx context.Context, email, password string) (*LoginResult, error) {
	if g == nil {
		return nil, ErrGuardNotReady
	}
	ctx = requestContext(ctx)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	out := flows.RunLogin(ctx, email, password, g.loginDeps())
	if out.Err != nil {
		kind := failureKind(out.Err)
		g.logger.LogAttrs(ctx, slog.LevelWarn, "sessionguard: login failed",
			slog.String("email", internal.MaskEmail(internal.NormalizeEmail(email))),
			slog.String("kind", string(kind)),
			slog.String("request_id", middleware.RequestIDFromContext(ctx)),
		)
		res := &LoginResult{
			Error:             out.Message,
			AttemptsRemaining: out.AttemptsRemaining,
			RetryAfter:        out.RetryAfter,
		}
		return res, &AuthError{Kind: kind, Message: out.Message, Err: out.Err}
	}

	g.logger.LogAttrs(ctx, slog.LevelInfo, "sessionguard: login succeeded",
		slog.String("email", internal.MaskEmail(out.Session.User.Email)),
		slog.String("request_id", middleware.RequestIDFromContext(ctx)),
	)
	return &LoginResult{
		Success:           true,
		User:              out.Session.User,
		Token:             out.Session.Token,
		AttemptsRemaining: g.config.Lockout.Threshold,
	}, nil
}

// Logout clears the session from memory and storage. It makes no network
// call and succeeds when there is no session.
func (g *Guard) Logout(ctx context.Context) error {
	if g == nil {
		return ErrGuardNotReady
	}
	ctx = requestContext(ctx)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	return flows.RunLogout(ctx, flows.LogoutDeps{
		Unpublish:          g.unpublish,
		ClearSession:       g.sessions.Clear,
		MetricInc:          g.metricInc,
		EmitAudit:          g.emitAudit,
		MetricLogout:       int(MetricLogout),
		EventLogout:        auditEventLogout,
		StorageUnavailable: ErrStorageUnavailable,
	})
}

// RestoreSession loads a previously persisted session. It reports whether a
// session was restored; missing or corrupt data is not an error.
func (g *Guard) RestoreSession(ctx context.Context) (bool, error) {
	if g == nil {
		return false, ErrGuardNotReady
	}
	ctx = requestContext(ctx)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	_, ok, err := flows.RunRestore(ctx, flows.RestoreDeps{
		DiscardExpiredTokens:  g.config.Session.DiscardExpiredTokens,
		LoadSession:           g.sessions.Load,
		TokenExpired:          g.tokenExpired,
		PublishSession:        g.publish,
		MetricInc:             g.metricInc,
		EmitAudit:             g.emitAudit,
		Warn:                  g.warn,
		MetricSessionRestored: int(MetricSessionRestored),
		EventSessionRestored:  auditEventSessionRestored,
		StorageUnavailable:    ErrStorageUnavailable,
	})
	return ok, err
}

// CurrentUser returns the signed-in user.
func (g *Guard) CurrentUser() (User, bool) {
	if g == nil {
		return User{}, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current.User.Clone(), g.authed
}

// Token returns the backend token, or "" when signed out.
func (g *Guard) Token() string {
	if g == nil {
		return ""
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current.Token
}

// IsAuthenticated reports whether a session is held in memory.
func (g *Guard) IsAuthenticated() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authed
}

// SessionInfo describes the current session.
func (g *Guard) SessionInfo() SessionInfo {
	if g == nil {
		return SessionInfo{}
	}
	g.mu.RLock()
	sess, authed := g.current, g.authed
	g.mu.RUnlock()

	info := SessionInfo{
		Authenticated: authed,
		User:          sess.User.Clone(),
		HasToken:      sess.Token != "",
	}
	if claims, err := jwt.Inspect(sess.Token); err == nil {
		info.TokenExpiresAt = claims.ExpiresAt
	}
	return info
}

// HTTPClient returns a client that adds the session token to every request
// made through it, for calling other endpoints of the same backend.
func (g *Guard) HTTPClient() *http.Client {
	hc := &http.Client{Timeout: g.config.Backend.RequestTimeout}
	if g.base != nil {
		clone := *g.base
		hc = &clone
		hc.Timeout = g.config.Backend.RequestTimeout
	}
	hc.Transport = middleware.Auth(middleware.RequestID(hc.Transport), g)
	return hc
}

// MetricsSnapshot returns a copy of the Guard's counters.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	if g == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return g.metrics.Snapshot()
}

// Metrics exposes the live counters for exporters.
func (g *Guard) Metrics() *Metrics {
	if g == nil {
		return nil
	}
	return g.metrics
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (g *Guard) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (g *Guard) AuditDroppedByType() map[string]uint64 {
	if g == nil {
		return map[string]uint64{}
	}
	return g.audit.DroppedByType()
}

// Close flushes pending audit events and releases a store opened by the
// Builder. The in-memory session is kept.
func (g *Guard) Close() error {
	if g == nil {
		return nil
	}
	g.audit.Close()

	var errs []error
	for _, c := range g.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}

func (g *Guard) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		Threshold:      g.config.Lockout.Threshold,
		Now:            g.now,
		CheckLockout:   g.lockout.Check,
		RecordFailure:  g.lockout.RecordFailure,
		ResetLockout:   g.lockout.Reset,
		Authenticate:   g.backend.Login,
		PersistSession: g.persist,
		PublishSession: g.publish,
		MetricInc:      g.metricInc,
		ObserveLatency: g.observeLogin,
		EmitAudit:      g.emitAudit,
		Warn:           g.warn,
		Metrics: flows.LoginMetrics{
			LoginSuccess:      int(MetricLoginSuccess),
			LoginFailure:      int(MetricLoginFailure),
			LoginLocked:       int(MetricLoginLocked),
			LoginTimeout:      int(MetricLoginTimeout),
			LoginNetworkError: int(MetricLoginNetworkError),
			LoginMalformed:    int(MetricLoginMalformed),
			LockoutTriggered:  int(MetricLockoutTriggered),
			LockoutExpired:    int(MetricLockoutExpired),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginLocked:      auditEventLoginLocked,
			LockoutTriggered: auditEventLockoutTriggered,
			LockoutExpired:   auditEventLockoutExpired,
		},
		Errors: flows.LoginErrors{
			AccountLocked:      ErrAccountLocked,
			RequestTimeout:     ErrRequestTimeout,
			Network:            ErrNetwork,
			InvalidCredentials: ErrInvalidCredentials,
			MalformedResponse:  ErrMalformedResponse,
			StorageUnavailable: ErrStorageUnavailable,
		},
	}
}

func (g *Guard) transportErrors() flows.TransportErrors {
	return flows.TransportErrors{
		RequestTimeout:    ErrRequestTimeout,
		Network:           ErrNetwork,
		MalformedResponse: ErrMalformedResponse,
	}
}

func (g *Guard) persist(ctx context.Context, sess session.Session) error {
	return g.sessions.Save(ctx, &sess)
}

func (g *Guard) publish(sess session.Session) {
	sess.User = sess.User.Clone()
	g.mu.Lock()
	g.current = sess
	g.authed = true
	g.mu.Unlock()
}

func (g *Guard) publishUser(u session.User) {
	u = u.Clone()
	g.mu.Lock()
	g.current.User = u
	g.mu.Unlock()
}

func (g *Guard) unpublish() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	email := ""
	if g.authed {
		email = g.current.User.Email
	}
	g.current = session.Session{}
	g.authed = false
	return email
}

func (g *Guard) snapshot() (session.Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current, g.authed
}

func (g *Guard) tokenExpired(token string) bool {
	claims, err := jwt.Inspect(token)
	if err != nil {
		return false
	}
	return claims.Expired(g.now())
}

func (g *Guard) metricInc(id int) {
	g.metrics.Inc(MetricID(id))
}

func (g *Guard) observeLogin(d time.Duration) {
	g.metrics.Observe(MetricLoginLatency, d)
}

func (g *Guard) warn(msg string, args ...any) {
	g.logger.Warn(msg, args...)
}
