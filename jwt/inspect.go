package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned for tokens that are not three-segment JWTs.
var ErrNotJWT = errors.New("token is not a jwt")

// Info holds the registered claims of an inspected token.
type Info struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry at or before now.
func (i Info) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Inspect decodes the registered claims of token without verifying it.
func Inspect(token string) (Info, error) {
	if strings.Count(token, ".") != 2 {
		return Info{}, ErrNotJWT
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	info := Info{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
