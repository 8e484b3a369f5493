package sessionguard

import (
	"time"

	"github.com/SmarTanom/sessionguard/session"
)

// User is the signed-in account as returned by the backend.
type User = session.User

// LoginResult is the outcome of [Guard.LoginWithResult]. On failure Error
// holds the message to show; AttemptsRemaining and RetryAfter describe the
// lockout state after this attempt.
type LoginResult struct {
	Success           bool
	Error             string
	User              User
	Token             string
	AttemptsRemaining int
	RetryAfter        time.Duration
}

// ProfileUpdate changes the fields that are non-nil. Fields sets any other
// key of the user record; each value must encode to JSON. A typed field wins
// over the same key in Fields.
type ProfileUpdate struct {
	Name     *string `validate:"omitempty,min=1,max=255"`
	Email    *string `validate:"omitempty,email"`
	Contact  *string `validate:"omitempty,max=32"`
	Username *string `validate:"omitempty,min=1,max=150"`
	Fields   map[string]any
}

// LockoutStatus is the evaluated lockout record for one email.
type LockoutStatus struct {
	Email             string
	Attempts          int
	AttemptsRemaining int
	Locked            bool
	LastAttempt       time.Time
	RetryAfter        time.Duration
}

// RegisterRequest is a sign-up submission.
type RegisterRequest struct {
	Email     string `validate:"required,email"`
	Name      string `validate:"required,max=255"`
	Password  string `validate:"required"`
	Password2 string `validate:"required,eqfield=Password"`
	Contact   string `validate:"omitempty,max=32"`
}

// RegisterResult is the backend's answer to a sign-up. The account starts
// inactive until the emailed activation link is followed.
type RegisterResult struct {
	UserID  int64
	Email   string
	Message string
}

// SessionInfo describes the current session without exposing the token.
type SessionInfo struct {
	Authenticated bool
	User          User
	HasToken      bool
	// TokenExpiresAt is set only when the token is a JWT carrying exp.
	TokenExpiresAt time.Time
}

// StringPtr returns a pointer to s, for building a [ProfileUpdate].
func StringPtr(s string) *string {
	return &s
}
