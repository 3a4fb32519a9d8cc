// Package identity defines the token verification port. Identity is an
// external collaborator: flapd never issues tokens, it only verifies them.
package identity

import "context"

// Claims is the user information extracted from a verified token.
type Claims struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}

// Verifier validates bearer tokens. Verify returns domain.ErrUnauthorized
// (possibly wrapped) for invalid or expired tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}
