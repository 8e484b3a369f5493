package sessionguard

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountLocked is returned while an email is inside its lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrRequestTimeout is returned when the backend did not answer in time.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrNetwork is returned when the backend could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrInvalidCredentials is returned when the backend rejected a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMalformedResponse is returned for success responses missing token or user.
	ErrMalformedResponse = errors.New("malformed server response")
	// ErrStorageUnavailable is returned when the key-value store failed.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNoSession is returned by operations that need a signed-in user.
	ErrNoSession = errors.New("no active session")
	// ErrUnauthorized is returned when the backend no longer accepts the token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput is returned when a request fails client-side validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRegistrationFailed is returned when the backend rejected a sign-up.
	ErrRegistrationFailed = errors.New("registration failed")
	// ErrActivationInvalid is returned for unknown or used activation links.
	ErrActivationInvalid = errors.New("activation link invalid")
	// ErrGuardNotReady is returned by methods called on a nil Guard.
	ErrGuardNotReady = errors.New("guard not initialized")
)

// FailureKind classifies a failed login for the caller.
type FailureKind string

const (
	// FailureLocked means the email is locked out; no request was sent.
	FailureLocked FailureKind = "locked"
	// FailureTimeout means the request exceeded the configured timeout.
	FailureTimeout FailureKind = "timeout"
	// FailureNetwork means the backend was unreachable.
	FailureNetwork FailureKind = "network"
	// FailureCredentials means the backend rejected the login.
	FailureCredentials FailureKind = "credentials"
	// FailureMalformed means the backend answered success without token or user.
	FailureMalformed FailureKind = "malformed"
	// FailureStorage means local persistence failed.
	FailureStorage FailureKind = "storage"
)

// AuthError is the error returned by login-like operations. Message is meant
// for display; Err wraps one of the package sentinels.
type AuthError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("sessionguard: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AsAuthError unwraps err into an *AuthError.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func failureKind(err error) FailureKind {
	switch {
	case errors.Is(err, ErrAccountLocked):
		return FailureLocked
	case errors.Is(err, ErrRequestTimeout):
		return FailureTimeout
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, ErrStorageUnavailable):
		return FailureStorage
	case errors.Is(err, ErrInvalidCredentials):
		return FailureCredentials
	default:
		return FailureNetwork
	}
}
