package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/illarion/vaultx/internal/crypto"
	"github.com/illarion/vaultx/internal/identity"
	"github.com/illarion/vaultx/internal/storage"
)

// Credentials are what the user typed. Identity is ignored by the local gate.
type Credentials struct {
	Identity   string
	Passphrase []byte
	Confirm    []byte
}

// Gate proves that an unlock attempt is legitimate. It never derives or
// holds key material.
type Gate interface {
	// Register creates the vault or account. established reports whether
	// an authenticated session exists afterwards.
	Register(ctx context.Context, creds Credentials) (established bool, err error)
	// Verify checks credentials, returning ErrWrongCredentials on rejection.
	Verify(ctx context.Context, creds Credentials) error
	// Release ends any identity session held on behalf of the vault.
	Release(ctx context.Context) error
	// RequiresIdentity reports whether Credentials.Identity must be set.
	RequiresIdentity() bool
}

// watcher is implemented by gates that can report a sign-in the session
// did not initiate.
type watcher interface {
	Watch(onForeign func()) (stop func())
}

// LocalGate checks the passphrase against a persisted fingerprint
type LocalGate struct {
	store  storage.FingerprintStore
	engine *crypto.Engine
}

// NewLocalGate creates a gate over the fingerprint slot of a local store
func NewLocalGate(store storage.FingerprintStore, engine *crypto.Engine) *LocalGate {
	return &LocalGate{store: store, engine: engine}
}

func (g *LocalGate) Register(ctx context.Context, creds Credentials) (bool, error) {
	err := g.store.SetFingerprintIfAbsent(ctx, g.engine.Fingerprint(creds.Passphrase))
	switch {
	case errors.Is(err, storage.ErrFingerprintExists):
		return false, ErrAlreadyExists
	case err != nil:
		return false, fmt.Errorf("failed to store fingerprint: %w", err)
	}
	return true, nil
}

func (g *LocalGate) Verify(ctx context.Context, creds Credentials) error {
	fingerprint, err := g.store.Fingerprint(ctx)
	if errors.Is(err, storage.ErrNoFingerprint) {
		return ErrNotInitialized
	}
	if err != nil {
		return fmt.Errorf("failed to read fingerprint: %w", err)
	}

	// Exact match only
	if !crypto.VerifyFingerprint(creds.Passphrase, fingerprint) {
		return ErrWrongCredentials
	}
	return nil
}

func (g *LocalGate) Release(context.Context) error { return nil }

func (g *LocalGate) RequiresIdentity() bool { return false }

// RemoteGate delegates authentication to the identity provider. A
// successful sign-in says nothing about whether the passphrase opens
// existing records.
type RemoteGate struct {
	provider   identity.Provider
	initiating atomic.Bool
}

// NewRemoteGate creates a gate over an identity provider
func NewRemoteGate(provider identity.Provider) *RemoteGate {
	return &RemoteGate{provider: provider}
}

func (g *RemoteGate) Register(ctx context.Context, creds Credentials) (bool, error) {
	g.initiating.Store(true)
	defer g.initiating.Store(false)

	_, session, err := g.provider.SignUp(ctx, creds.Identity, string(creds.Passphrase))
	switch {
	case errors.Is(err, identity.ErrUserExists):
		return false, ErrAlreadyExists
	case err != nil:
		return false, fmt.Errorf("sign-up failed: %w", err)
	}
	return session != nil, nil
}

func (g *RemoteGate) Verify(ctx context.Context, creds Credentials) error {
	g.initiating.Store(true)
	defer g.initiating.Store(false)

	_, err := g.provider.SignInWithPassword(ctx, creds.Identity, string(creds.Passphrase))
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrEmailNotConfirmed):
		return ErrWrongCredentials
	case err != nil:
		return fmt.Errorf("sign-in failed: %w", err)
	}
	return nil
}

func (g *RemoteGate) Release(ctx context.Context) error {
	return g.provider.SignOut(ctx)
}

func (g *RemoteGate) RequiresIdentity() bool { return true }

// Watch calls onForeign for every SignedIn event not caused by Register
// or Verify. Such sessions carry no passphrase and are never trusted.
func (g *RemoteGate) Watch(onForeign func()) func() {
	return g.provider.Subscribe(func(e identity.Event) {
		if e.Kind != identity.SignedIn || g.initiating.Load() {
			return
		}
		onForeign()
	})
}
