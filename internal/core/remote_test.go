package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/vaultx/internal/crypto"
	"github.com/illarion/vaultx/internal/storage"
)

func TestRemoteRequiresIdentity(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	ctx := context.Background()

	_, err := s.Setup(ctx, creds("", "abcdef"))
	assert.ErrorIs(t, err, ErrIdentityRequired)

	_, err = s.Unlock(ctx, creds(" ", "abcdef"))
	assert.ErrorIs(t, err, ErrIdentityRequired)

	assert.Empty(t, provider.users)
}

func TestRemoteSetupAndUnlock(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	ctx := context.Background()

	res, err := s.Setup(ctx, creds("alice@example.com", "abcdef"))
	require.NoError(t, err)
	assert.False(t, res.PendingConfirmation)
	assert.Equal(t, Unlocked, s.State(), "own sign-up must not trigger a forced lock")

	_, err = s.Save(ctx, "Email", "alice@example.com", "S3cr3t!")
	require.NoError(t, err)

	s.Lock()
	assert.False(t, provider.hasSession(), "lock signs out")

	report, err := s.Unlock(ctx, creds("alice@example.com", "abcdef"))
	require.NoError(t, err)
	assert.Equal(t, LoadReport{Total: 1, Opened: 1}, report)
	assert.Equal(t, Unlocked, s.State())
	assert.Equal(t, "S3cr3t!", s.Records()[0].Secret)

	_, err = s.Setup(ctx, creds("alice@example.com", "abcdef"))
	assert.ErrorIs(t, err, ErrAlreadyUnlocked)
}

func TestRemoteUnlockStoreFailureSignsOut(t *testing.T) {
	s, store, provider := newRemoteSession(t)
	ctx := context.Background()
	provider.users["alice@example.com"] = "abcdef"

	store.set(func(m *memStore) { m.listErr = &storage.Error{Op: "list", Err: storage.ErrCorrupt} })
	_, err := s.Unlock(ctx, creds("alice@example.com", "abcdef"))
	assert.ErrorIs(t, err, storage.ErrCorrupt)
	assert.Equal(t, Locked, s.State())
	assert.False(t, provider.hasSession(), "failed unlock signs out")
}

func TestRemoteSetupExistingAccount(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	provider.users["alice@example.com"] = "abcdef"

	_, err := s.Setup(context.Background(), creds("alice@example.com", "abcdef"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, Locked, s.State())
}

func TestRemoteSetupPendingConfirmation(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	provider.confirm = true

	res, err := s.Setup(context.Background(), creds("alice@example.com", "abcdef"))
	require.NoError(t, err)
	assert.True(t, res.PendingConfirmation)
	assert.Equal(t, Locked, s.State())
}

func TestRemoteWrongPassword(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	provider.users["alice@example.com"] = "abcdef"

	_, err := s.Unlock(context.Background(), creds("alice@example.com", "wrong!"))
	assert.ErrorIs(t, err, ErrWrongCredentials)
	assert.Equal(t, Locked, s.State())

	_, err = s.Unlock(context.Background(), creds("nobody@example.com", "abcdef"))
	assert.ErrorIs(t, err, ErrWrongCredentials)
}

func TestRemoteUnlockWithForeignRecords(t *testing.T) {
	s, store, provider := newRemoteSession(t)
	ctx := context.Background()
	provider.users["alice@example.com"] = "abcdef"

	// Sealed under a passphrase the identity provider knows nothing about
	key, err := crypto.NewKeyMaterial([]byte("another-passphrase"))
	require.NoError(t, err)
	envelope, err := testEngine().Seal(`{"u":"alice","p":"x"}`, key)
	key.Destroy()
	require.NoError(t, err)
	_, err = store.Insert(ctx, "Old", envelope)
	require.NoError(t, err)

	report, err := s.Unlock(ctx, creds("alice@example.com", "abcdef"))
	require.NoError(t, err)
	assert.True(t, report.AllDropped())
	assert.Equal(t, LoadReport{Total: 1, Dropped: 1}, report)
	assert.Equal(t, Unlocked, s.State())
	assert.Empty(t, s.Records())
}

func TestForeignSignInWhileLocked(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	provider.users["alice@example.com"] = "abcdef"

	provider.restore("alice@example.com")

	assert.False(t, provider.hasSession(), "restored session must be signed out")
	assert.Equal(t, Locked, s.State())
	assert.Empty(t, s.Records())
}

func TestForeignSignInWhileUnlocked(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	ctx := context.Background()

	_, err := s.Setup(ctx, creds("alice@example.com", "abcdef"))
	require.NoError(t, err)
	_, err = s.Save(ctx, "t", "u", "p")
	require.NoError(t, err)

	provider.restore("alice@example.com")

	assert.Equal(t, Locked, s.State())
	assert.Empty(t, s.Records())
	assert.False(t, provider.hasSession())

	_, err = s.Save(ctx, "t", "u", "p")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestCloseStopsWatching(t *testing.T) {
	s, _, provider := newRemoteSession(t)
	s.Close()

	provider.restore("alice@example.com")
	assert.True(t, provider.hasSession())
}
