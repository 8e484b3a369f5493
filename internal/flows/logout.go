package flows

import (
	"context"
	"fmt"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	// Unpublish clears the in-memory session and returns the email it
	// belonged to, or "" when there was none.
	Unpublish    func() string
	ClearSession func(context.Context) error

	MetricInc func(int)
	EmitAudit AuditFunc

	MetricLogout       int
	EventLogout        string
	StorageUnavailable error
}

// RunLogout drops the in-memory session first, then the persisted keys. It
// never calls the network and is safe to repeat.
func RunLogout(ctx context.Context, deps LogoutDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}

	email := deps.Unpublish()
	if err := deps.ClearSession(ctx); err != nil {
		return fmt.Errorf("%w: %v", deps.StorageUnavailable, err)
	}

	if email != "" {
		deps.MetricInc(deps.MetricLogout)
		deps.EmitAudit(ctx, deps.EventLogout, true, email, nil, nil)
	}
	return nil
}
