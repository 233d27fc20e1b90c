// Package auth verifies the bearer credentials issued by the external
// authentication subsystem. Tokens are HS256-signed JWTs carrying the user
// id, display name and role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"activityhub/pkg/types"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingClaims = errors.New("token missing identity claims")
)

// Identity is the authenticated principal bound to a connection or request.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// IsAdmin reports whether the identity may join the dashboard room.
func (i Identity) IsAdmin() bool { return i.Role == types.RoleAdmin }

// Verifier validates bearer tokens presented on the websocket upgrade and on
// API requests.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// HMACVerifier verifies tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return Identity{}, ErrMissingClaims
	}
	if !types.IsValidRole(c.Role) {
		return Identity{}, fmt.Errorf("%w: role %q", ErrMissingClaims, c.Role)
	}
	return Identity{UserID: c.Subject, Name: c.Name, Role: c.Role}, nil
}

// Sign issues a token for the identity. Used by tests and the token
// subcommand; production tokens come from the auth service.
func Sign(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: id.Name,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}
