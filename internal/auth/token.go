// Package auth keeps operator sessions and hands out fresh access tokens
// for calls to the claims API.
package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ErrMalformedToken is returned for access tokens without the expected claims
var ErrMalformedToken = errors.New("auth: malformed access token")

// AccessClaims are the parts of an access token the console relies on
type AccessClaims struct {
	UserID    int
	ExpiresAt time.Time
}

// Expired reports whether the token expires within skew of now
func (c AccessClaims) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// ParseAccess reads the claims of an access token without verifying its
// signature. The claims API verifies every request; the console only needs
// the user and the expiry.
func ParseAccess(token string) (AccessClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return AccessClaims{}, errors.Wrap(ErrMalformedToken, err.Error())
	}

	var out AccessClaims
	switch v := claims["user_id"].(type) {
	case float64:
		out.UserID = int(v)
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return AccessClaims{}, errors.Wrap(ErrMalformedToken, "user_id is not numeric")
		}
		out.UserID = id
	default:
		return AccessClaims{}, errors.Wrap(ErrMalformedToken, "missing user_id")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return AccessClaims{}, errors.Wrap(ErrMalformedToken, err.Error())
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
