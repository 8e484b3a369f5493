package flows

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/SmarTanom/sessionguard/internal"
	"github.com/SmarTanom/sessionguard/internal/backend"
	"github.com/SmarTanom/sessionguard/internal/limiters"
	"github.com/SmarTanom/sessionguard/session"
)

const (
	lockedMessageFormat   = "Account locked due to too many failed login attempts. Please try again in ~%dh."
	timeoutMessage        = "Request timed out. Please check your connection and try again."
	networkMessage        = "Network error. Please check your connection and try again."
	malformedMessage      = "Unexpected response from server. Please try again."
	storageMessage        = "Unable to access local storage. Please try again."
	fallbackLoginMessage  = "Login failed. Please check your credentials."
	remainingSuffixFormat = "%s (%d %s remaining)"
)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess      int
	LoginFailure      int
	LoginLocked       int
	LoginTimeout      int
	LoginNetworkError int
	LoginMalformed    int
	LockoutTriggered  int
	LockoutExpired    int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginLocked      string
	LockoutTriggered string
	LockoutExpired   string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	AccountLocked      error
	RequestTimeout     error
	Network            error
	InvalidCredentials error
	MalformedResponse  error
	StorageUnavailable error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Threshold int
	Now       func() time.Time

	CheckLockout   func(context.Context, string) (limiters.LockoutState, error)
	RecordFailure  func(context.Context, string) (limiters.LockoutState, error)
	ResetLockout   func(context.Context, string) error
	Authenticate   func(context.Context, string, string) (*backend.AuthResponse, error)
	PersistSession func(context.Context, session.Session) error
	PublishSession func(session.Session)

	MetricInc      func(int)
	ObserveLatency func(time.Duration)
	EmitAudit      AuditFunc
	Warn           func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// LoginOutcome is the flow-local login result. On failure Err wraps one of
// the LoginErrors sentinels and Message is the text shown to the user.
type LoginOutcome struct {
	Session           session.Session
	Message           string
	AttemptsRemaining int
	RetryAfter        time.Duration
	Err               error
}

// LockedMessage formats the lockout message for the given time left,
// rounding up to whole hours.
func LockedMessage(retryAfter time.Duration) string {
	hours := int(math.Ceil(retryAfter.Hours()))
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf(lockedMessageFormat, hours)
}

// AnnotateRemaining appends the remaining attempt count to a server message.
func AnnotateRemaining(msg string, remaining int) string {
	noun := "attempts"
	if remaining == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf(remainingSuffixFormat, msg, remaining, noun)
}

// RunLogin executes the login flow: lockout check, backend call, counter
// update, then persistence of the new session.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginOutcome {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = noopLatency
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}

	email = internal.NormalizeEmail(email)

	state, err := deps.CheckLockout(ctx, email)
	if err != nil {
		deps.Warn("sessionguard: lockout read failed", "email", internal.MaskEmail(email), "error", err)
		return LoginOutcome{Message: storageMessage, Err: fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)}
	}
	if state.Expired {
		deps.MetricInc(deps.Metrics.LockoutExpired)
		deps.EmitAudit(ctx, deps.Events.LockoutExpired, true, email, nil, nil)
	}
	if state.Locked {
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, deps.Events.LoginLocked, false, email, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"retry_after": state.RetryAfter.Round(time.Second).String()}
		})
		return LoginOutcome{
			Message:    LockedMessage(state.RetryAfter),
			RetryAfter: state.RetryAfter,
			Err:        deps.Errors.AccountLocked,
		}
	}

	start := deps.Now()
	resp, err := deps.Authenticate(ctx, email, password)
	deps.ObserveLatency(deps.Now().Sub(start))
	if err != nil {
		return handleLoginError(ctx, email, err, deps)
	}

	sess := session.Session{User: resp.User, Token: resp.Token}

	if err := deps.PersistSession(ctx, sess); err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, email, deps.Errors.StorageUnavailable, nil)
		return LoginOutcome{Message: storageMessage, Err: fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)}
	}
	// The counter is only cleared once the session is stored.
	if err := deps.ResetLockout(ctx, email); err != nil {
		deps.Warn("sessionguard: lockout reset failed", "email", internal.MaskEmail(email), "error", err)
	}
	deps.PublishSession(sess)

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, email, nil, func() map[string]string {
		return map[string]string{"user_id": strconv.FormatInt(sess.User.ID, 10)}
	})
	return LoginOutcome{Session: sess}
}

func handleLoginError(ctx context.Context, email string, err error, deps LoginDeps) LoginOutcome {
	switch {
	case errors.Is(err, backend.ErrTimeout):
		deps.MetricInc(deps.Metrics.LoginTimeout)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, email, deps.Errors.RequestTimeout, nil)
		return LoginOutcome{Message: timeoutMessage, Err: fmt.Errorf("%w: %v", deps.Errors.RequestTimeout, err)}
	case errors.Is(err, backend.ErrMalformedResponse):
		deps.MetricInc(deps.Metrics.LoginMalformed)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, email, deps.Errors.MalformedResponse, nil)
		return LoginOutcome{Message: malformedMessage, Err: fmt.Errorf("%w: %v", deps.Errors.MalformedResponse, err)}
	}

	se, ok := backend.AsStatusError(err)
	if !ok {
		deps.MetricInc(deps.Metrics.LoginNetworkError)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, email, deps.Errors.Network, nil)
		return LoginOutcome{Message: networkMessage, Err: fmt.Errorf("%w: %v", deps.Errors.Network, err)}
	}

	deps.MetricInc(deps.Metrics.LoginFailure)
	state, recErr := deps.RecordFailure(ctx, email)
	if recErr != nil {
		deps.Warn("sessionguard: lockout write failed", "email", internal.MaskEmail(email), "error", recErr)
	}

	status := strconv.Itoa(se.StatusCode)
	if state.Locked {
		if state.Triggered {
			deps.MetricInc(deps.Metrics.LockoutTriggered)
			deps.EmitAudit(ctx, deps.Events.LockoutTriggered, false, email, deps.Errors.AccountLocked, func() map[string]string {
				return map[string]string{"attempts": strconv.Itoa(state.Attempts)}
			})
		}
		return LoginOutcome{
			Message:    LockedMessage(state.RetryAfter),
			RetryAfter: state.RetryAfter,
			Err:        fmt.Errorf("%w: %w", deps.Errors.AccountLocked, deps.Errors.InvalidCredentials),
		}
	}

	remaining := state.Remaining(deps.Threshold)
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, email, deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{"status": status, "attempts": strconv.Itoa(state.Attempts)}
	})

	msg := se.Message
	if msg == "" {
		msg = fallbackLoginMessage
	}
	if recErr == nil && state.Attempts > 0 {
		msg = AnnotateRemaining(msg, remaining)
	}
	return LoginOutcome{
		Message:           msg,
		AttemptsRemaining: remaining,
		Err:               fmt.Errorf("%w: %v", deps.Errors.InvalidCredentials, se),
	}
}
