// Package auth verifies bearer tokens and guards operations by role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// Token errors
var (
	ErrMissingToken = fmt.Errorf("%w: missing bearer token", interfaces.ErrUnauthenticated)
	ErrInvalidToken = fmt.Errorf("%w: invalid token", interfaces.ErrUnauthenticated)
	ErrTokenExpired = fmt.Errorf("%w: token has expired", interfaces.ErrUnauthenticated)
)

// Claims carries the caller identity and role
type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the verified caller attached to a request
type Identity struct {
	UserID int64
	Role   string
}

// TokenManager issues and verifies HS256 tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for user carrying its role claim
func (m *TokenManager) Issue(user *types.User) (string, time.Time, error) {
	if !types.IsValidRole(user.UserType) {
		return "", time.Time{}, types.ErrInvalidRole
	}

	now := m.now()
	expires := now.Add(m.ttl)
	claims := Claims{
		UserID: user.ID,
		Role:   user.UserType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token and returns the identity it carries
func (m *TokenManager) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if m.issuer != "" && !claims.VerifyIssuer(m.issuer, true) {
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 || !types.IsValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
