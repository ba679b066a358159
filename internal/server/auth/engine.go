// Package auth issues and decodes HS256 access tokens.
//
// A token carries the user id in "sub" and, for module scoped tokens, the
// module name in "module". Expiry is always set. Tokens are not persisted;
// anything beyond signature and expiry (grant checks) is up to the caller.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload.
type Claims struct {
	Module string `json:"module,omitempty"`
	jwt.RegisteredClaims
}

// Engine signs and verifies tokens with a single shared secret. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	secret     []byte
	defaultTTL time.Duration
	clock      Clock
}

// NewEngine builds an Engine. A nil clock means SystemClock.
func NewEngine(secret []byte, defaultTTL time.Duration, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{secret: secret, defaultTTL: defaultTTL, clock: clock}
}

// Issue signs a token for subject. Empty module yields a subject-only token;
// ttl <= 0 uses the default TTL.
func (e *Engine) Issue(subject, module string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	now := e.clock.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Module: module,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	s, err := token.SignedString(e.secret)
	if err != nil {
		return "", err
	}
	return s, nil
}

// Decode verifies the signature and returns the claims. With enforceExpiry
// an expired token fails with common.ErrTokenExpired; without it claim
// validation is skipped entirely. Any other failure is common.ErrInvalidToken.
func (e *Engine) Decode(tokenString string, enforceExpiry bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(e.clock.Now),
	}
	if enforceExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return e.secret, nil
	}, opts...)
	if err != nil {
		if enforceExpiry && errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
