package flows

import (
	"context"
	"time"
)

// AuditFunc emits one audit event. meta is evaluated lazily so disabled
// audit costs nothing.
type AuditFunc func(ctx context.Context, event string, success bool, email string, err error, meta func() map[string]string)

func noopMetric(int) {}

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func noopWarn(string, ...any) {}

func noopLatency(time.Duration) {}
