// Package auth validates the HS256 tokens that scope realtime streams.
//
// Secrets rotate: a token signed with the previous secret stays valid until
// the previous secret is dropped from configuration.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails validation
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the token claims issued by the dashboard backend
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email"`
}

// UserID returns the numeric subject
func (c *Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return id, nil
}

// Validator checks tokens against the current and previous secret
type Validator struct {
	current  []byte
	previous []byte
	now      func() time.Time
}

// NewValidator creates a Validator. previous may be empty.
func NewValidator(current, previous string) (*Validator, error) {
	if current == "" {
		return nil, fmt.Errorf("current secret is required")
	}
	v := &Validator{
		current: []byte(current),
		now:     time.Now,
	}
	if previous != "" {
		v.previous = []byte(previous)
	}
	return v, nil
}

// Validate parses token, trying the current secret first and then the previous one.
// The error from the current secret is reported when both fail.
func (v *Validator) Validate(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims, err := v.parse(token, v.current)
	if err == nil {
		return claims, nil
	}

	if v.previous != nil {
		if claims, prevErr := v.parse(token, v.previous); prevErr == nil {
			return claims, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func (v *Validator) parse(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Issue signs a token for userID valid for ttl
func Issue(secret string, userID uint64, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
