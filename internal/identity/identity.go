// Package identity describes the hosted identity provider as vaultx sees
// it: account sign-up, password sign-in, sign-out, the current session,
// and a stream of auth-state events.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrUserExists         = errors.New("user already registered")
	ErrNoSession          = errors.New("no active session")
	ErrRateLimited        = errors.New("too many requests")
)

// User is an account known to the provider
type User struct {
	ID          string
	Email       string
	ConfirmedAt time.Time
}

// Session is an authenticated identity with a bearer token
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        User
}

// Expired reports whether the token is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// EventKind distinguishes auth-state changes
type EventKind string

const (
	SignedIn  EventKind = "SIGNED_IN"
	SignedOut EventKind = "SIGNED_OUT"
)

// Event is delivered to subscribers on every auth-state change.
// Session is nil for SignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Provider is the identity boundary. Implementations deliver events
// synchronously on the goroutine that caused the change.
type Provider interface {
	// SignUp creates an account. The session is nil while email
	// confirmation is pending.
	SignUp(ctx context.Context, email, password string) (*User, *Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// GetSession returns the current unexpired session, or nil.
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*User, error)
	Subscribe(fn func(Event)) (unsubscribe func())
}
