package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/SmarTanom/sessionguard/internal"
	"github.com/SmarTanom/sessionguard/session"
)

// RestoreDeps captures restore dependencies.
type RestoreDeps struct {
	DiscardExpiredTokens bool

	LoadSession    func(context.Context) (*session.Session, error)
	TokenExpired   func(string) bool
	PublishSession func(session.Session)

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	MetricSessionRestored int
	EventSessionRestored  string
	StorageUnavailable    error
}

// RunRestore loads the persisted session and publishes it. Missing or
// undecodable data leaves the Guard unauthenticated; only a storage failure
// is reported as an error.
func RunRestore(ctx context.Context, deps RestoreDeps) (session.Session, bool, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}

	sess, err := deps.LoadSession(ctx)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return session.Session{}, false, nil
	case errors.Is(err, session.ErrCorrupt):
		deps.Warn("sessionguard: stored user is corrupt, ignoring", "error", err)
		return session.Session{}, false, nil
	case err != nil:
		return session.Session{}, false, fmt.Errorf("%w: %v", deps.StorageUnavailable, err)
	}

	if deps.DiscardExpiredTokens && deps.TokenExpired != nil && deps.TokenExpired(sess.Token) {
		deps.Warn("sessionguard: stored token expired, ignoring", "email", internal.MaskEmail(sess.User.Email))
		return session.Session{}, false, nil
	}

	deps.PublishSession(*sess)
	deps.MetricInc(deps.MetricSessionRestored)
	deps.EmitAudit(ctx, deps.EventSessionRestored, true, sess.User.Email, nil, nil)
	return *sess, true, nil
}
