package sessionguard

import (
	"context"
	"fmt"

	"github.com/SmarTanom/sessionguard/internal"
)

// LockoutStatus evaluates the failed-login record of email. Like a login, it
// clears a lock whose window has elapsed.
func (g *Guard) LockoutStatus(ctx context.Context, email string) (LockoutStatus, error) {
	if g == nil {
		return LockoutStatus{}, ErrGuardNotReady
	}
	ctx = requestContext(ctx)
	email = internal.NormalizeEmail(email)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	state, err := g.lockout.Check(ctx, email)
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if state.Expired {
		g.metricInc(int(MetricLockoutExpired))
		g.emitAudit(ctx, auditEventLockoutExpired, true, email, nil, nil)
	}

	return LockoutStatus{
		Email:             email,
		Attempts:          state.Attempts,
		AttemptsRemaining: state.Remaining(g.config.Lockout.Threshold),
		Locked:            state.Locked,
		LastAttempt:       state.LastAttempt,
		RetryAfter:        state.RetryAfter,
	}, nil
}

// ResetLockout deletes the failed-login record of email.
func (g *Guard) ResetLockout(ctx context.Context, email string) error {
	if g == nil {
		return ErrGuardNotReady
	}
	ctx = requestContext(ctx)
	email = internal.NormalizeEmail(email)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	if err := g.lockout.Clear(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	g.logger.Info("sessionguard: lockout reset", "email", internal.MaskEmail(email))
	return nil
}
