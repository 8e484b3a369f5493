package sessionguard

import (
	"context"
	"errors"

	"github.com/SmarTanom/sessionguard/internal"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginLocked      = "login_locked"
	auditEventLockoutTriggered = "lockout_triggered"
	auditEventLockoutExpired   = "lockout_expired"
	auditEventLogout           = "logout"
	auditEventSessionRestored  = "session_restored"
	auditEventProfileUpdated   = "profile_updated"
	auditEventRegister         = "register"
	auditEventActivation       = "activation"
)

// AuditEventTypes lists every event type the Guard emits, for use in
// [AuditConfig.Events].
var AuditEventTypes = []string{
	auditEventLoginSuccess,
	auditEventLoginFailure,
	auditEventLoginLocked,
	auditEventLockoutTriggered,
	auditEventLockoutExpired,
	auditEventLogout,
	auditEventSessionRestored,
	auditEventProfileUpdated,
	auditEventRegister,
	auditEventActivation,
}

func isAuditEventType(name string) bool {
	for _, known := range AuditEventTypes {
		if known == name {
			return true
		}
	}
	return false
}

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrNetwork            AuditErrorCode = "network"
	auditErrMalformed          AuditErrorCode = "malformed_response"
	auditErrStorage            AuditErrorCode = "storage_unavailable"
	auditErrActivationInvalid  AuditErrorCode = "activation_invalid"
	auditErrRejected           AuditErrorCode = "rejected"
)

func (g *Guard) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if g == nil || g.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: g.now().UTC(),
		EventType: eventType,
		Success:   success,
		Metadata:  metadata,
	}
	if email != "" {
		event.Email = internal.MaskEmail(email)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	g.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRequestTimeout):
		return auditErrTimeout
	case errors.Is(err, ErrMalformedResponse):
		return auditErrMalformed
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrStorage
	case errors.Is(err, ErrActivationInvalid):
		return auditErrActivationInvalid
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	default:
		return auditErrRejected
	}
}
