// Package identity authenticates callers against an external or local
// identity store and hands back the stable identity id used as the profile
// key.
package identity

import (
	"context"
	"errors"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Identity is the authenticated subject as known to the provider.
type Identity struct {
	ID    string
	Email string
}

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken string
	Identity    Identity
}

// Provider is implemented by every supported identity backend.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error
	GetUser(ctx context.Context, token string) (Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}
