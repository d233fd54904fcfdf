// Package auth issues and validates the JWTs carried by API clients.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/users"
)

type Claims struct {
	AccountID int64           `json:"account_id"`
	Kind      users.OwnerKind `json:"kind"`
	Role      users.Role      `json:"role"`
	Name      string          `json:"name"`
	jwt.RegisteredClaims
}

// Manager signs and parses tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

func (m *Manager) Issue(accountID int64, kind users.OwnerKind, role users.Role, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		Kind:      kind,
		Role:      role,
		Name:      name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) Validate(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Validation("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperr.Validation("invalid token claims")
	}
	return claims, nil
}
