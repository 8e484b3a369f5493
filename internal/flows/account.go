package flows

import (
	"context"
	"fmt"

	"github.com/SmarTanom/sessionguard/internal"
	"github.com/SmarTanom/sessionguard/internal/backend"
	"github.com/SmarTanom/sessionguard/session"
)

// AccountMetrics carries metric IDs needed by registration and activation.
type AccountMetrics struct {
	RegisterSuccess   int
	RegisterFailure   int
	ActivationSuccess int
	ActivationFailure int
}

// AccountEvents carries audit event names used by registration and
// activation.
type AccountEvents struct {
	Register   string
	Activation string
}

// AccountErrors carries host-level sentinel errors used by account flows.
type AccountErrors struct {
	InvalidInput       error
	RegistrationFailed error
	ActivationInvalid  error
	StorageUnavailable error
	Transport          TransportErrors
}

// AccountDeps captures registration and activation dependencies.
type AccountDeps struct {
	Validate       func(backend.RegisterPayload) error
	Register       func(context.Context, backend.RegisterPayload) (*backend.RegisterResponse, error)
	Activate       func(context.Context, string, string) (*backend.AuthResponse, error)
	ResetLockout   func(context.Context, string) error
	PersistSession func(context.Context, session.Session) error
	PublishSession func(session.Session)

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

// RunRegister validates and submits a sign-up. It never logs the user in.
func RunRegister(ctx context.Context, payload backend.RegisterPayload, deps AccountDeps) (*backend.RegisterResponse, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}

	payload.Email = internal.NormalizeEmail(payload.Email)
	if deps.Validate != nil {
		if err := deps.Validate(payload); err != nil {
			deps.MetricInc(deps.Metrics.RegisterFailure)
			return nil, fmt.Errorf("%w: %v", deps.Errors.InvalidInput, err)
		}
	}

	resp, err := deps.Register(ctx, payload)
	if err != nil {
		mapped, ok := mapTransport(err, deps.Errors.Transport)
		if !ok {
			mapped = deps.Errors.RegistrationFailed
			if se, _ := backend.AsStatusError(err); se.Message != "" {
				mapped = fmt.Errorf("%w: %s", deps.Errors.RegistrationFailed, se.Message)
			}
		}
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.Register, false, payload.Email, mapped, nil)
		return nil, mapped
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.Register, true, payload.Email, nil, nil)
	return resp, nil
}

// RunActivate follows an activation link. A successful activation signs the
// user in exactly like a login would.
func RunActivate(ctx context.Context, uid, token string, deps AccountDeps) (session.Session, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}

	resp, err := deps.Activate(ctx, uid, token)
	if err != nil {
		mapped, ok := mapTransport(err, deps.Errors.Transport)
		if !ok {
			se, _ := backend.AsStatusError(err)
			mapped = fmt.Errorf("%w: %s", deps.Errors.ActivationInvalid, se.Message)
		}
		deps.MetricInc(deps.Metrics.ActivationFailure)
		deps.EmitAudit(ctx, deps.Events.Activation, false, "", mapped, nil)
		return session.Session{}, mapped
	}

	sess := session.Session{User: resp.User, Token: resp.Token}
	email := internal.NormalizeEmail(sess.User.Email)
	if err := deps.ResetLockout(ctx, email); err != nil {
		deps.Warn("sessionguard: lockout reset failed", "email", internal.MaskEmail(email), "error", err)
	}
	if err := deps.PersistSession(ctx, sess); err != nil {
		deps.MetricInc(deps.Metrics.ActivationFailure)
		return session.Session{}, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	deps.PublishSession(sess)

	deps.MetricInc(deps.Metrics.ActivationSuccess)
	deps.EmitAudit(ctx, deps.Events.Activation, true, email, nil, nil)
	return sess, nil
}
