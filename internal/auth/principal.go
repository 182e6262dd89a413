// Package auth verifies identity provider credentials and exposes the
// authenticated principal to request handlers.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrInvalidToken is returned when a token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidSignature is returned when token signature is invalid
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMissingSubject is returned when a verified token carries no subject
	ErrMissingSubject = errors.New("token has no subject")
)

// Principal is the identity established for a request
type Principal struct {
	UserID string `json:"user_id"` // identity provider subject
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Verifier turns a bearer credential into a principal
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal, if any
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
