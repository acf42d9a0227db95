package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/illarion/vaultx/internal/devserver"
	"github.com/illarion/vaultx/internal/identity"
	"github.com/illarion/vaultx/internal/keyring"
	"github.com/illarion/vaultx/internal/storage"
)

// logBuffer is a goroutine-safe sink for the devserver's JSON log
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// confirmationToken returns the last token the devserver logged for email
func (l *logBuffer) confirmationToken(email string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var token string
	sc := bufio.NewScanner(bytes.NewReader(l.buf.Bytes()))
	for sc.Scan() {
		var entry struct {
			Msg   string `json:"msg"`
			Email string `json:"email"`
			Token string `json:"token"`
		}
		if json.Unmarshal(sc.Bytes(), &entry) == nil && entry.Msg == "confirmation token issued" && entry.Email == email {
			token = entry.Token
		}
	}
	return token
}

type testEnv struct {
	server *httptest.Server
	logs   *logBuffer
	anon   string
}

func setupTestEnv(t *testing.T, mutate func(*devserver.Config)) *testEnv {
	t.Helper()
	gokeyring.MockInit()

	db, err := devserver.OpenMemoryDB(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, devserver.RunMigrations(db.Writer))

	logs := &logBuffer{}
	cfg := devserver.DefaultConfig()
	cfg.Argon = devserver.ArgonParams{Memory: 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
	cfg.SignInBurst = 100
	cfg.Logger = slog.New(slog.NewJSONHandler(logs, nil))
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := devserver.New(db, cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, logs: logs, anon: cfg.AnonKey}
}

func (e *testEnv) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{
		URL:        e.server.URL,
		AnonKey:    e.anon,
		HTTPClient: e.server.Client(),
		Tokens:     keyring.New(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return c
}

type eventLog struct {
	mu    sync.Mutex
	kinds []identity.EventKind
}

func (l *eventLog) record(e identity.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, e.Kind)
}

func (l *eventLog) list() []identity.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]identity.EventKind(nil), l.kinds...)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{AnonKey: "k"})
	assert.ErrorIs(t, err, ErrNoURL)

	_, err = New(Config{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrNoAnonKey)

	_, err = New(Config{URL: "ftp://example.com", AnonKey: "k"})
	assert.Error(t, err)

	c, err := New(Config{URL: "https://example.com/", AnonKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", c.URL())
}

func TestSignUpSignInSignOut(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.client(t)
	ctx := context.Background()

	events := &eventLog{}
	unsubscribe := c.Subscribe(events.record)
	defer unsubscribe()

	user, session, err := c.SignUp(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, session.ExpiresAt.After(time.Now()))
	assert.True(t, c.HasPersisted())

	got, err := c.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, c.SignOut(ctx))
	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, c.HasPersisted())

	_, err = c.GetUser(ctx)
	assert.ErrorIs(t, err, identity.ErrNoSession)

	session, err = c.SignInWithPassword(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)

	assert.Equal(t, []identity.EventKind{identity.SignedIn, identity.SignedOut, identity.SignedIn}, events.list())
}

func TestAuthErrors(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.client(t)
	ctx := context.Background()

	_, _, err := c.SignUp(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)

	_, _, err = c.SignUp(ctx, "alice@example.com", "abcdef")
	assert.ErrorIs(t, err, identity.ErrUserExists)

	_, err = c.SignInWithPassword(ctx, "alice@example.com", "wrong!")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, _, err = c.SignUp(ctx, "bob@example.com", "abc")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "weak_password", apiErr.Code)
}

func TestConfirmationFlow(t *testing.T) {
	env := setupTestEnv(t, func(c *devserver.Config) { c.RequireConfirmation = true })
	c := env.client(t)
	ctx := context.Background()

	user, session, err := c.SignUp(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.True(t, user.ConfirmedAt.IsZero())

	_, err = c.SignInWithPassword(ctx, "alice@example.com", "abcdef")
	assert.ErrorIs(t, err, identity.ErrEmailNotConfirmed)

	token := env.logs.confirmationToken("alice@example.com")
	require.NotEmpty(t, token)

	confirmed, err := c.Verify(ctx, "alice@example.com", token)
	require.NoError(t, err)
	assert.False(t, confirmed.ConfirmedAt.IsZero())

	s, err := c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "verify does not adopt a session")

	_, err = c.SignInWithPassword(ctx, "alice@example.com", "abcdef")
	assert.NoError(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.client(t)
	ctx := context.Background()

	_, _, err := c.SignUp(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)

	first, err := c.Insert(ctx, "first", "enc1")
	require.NoError(t, err)
	second, err := c.Insert(ctx, "second", "enc2")
	require.NoError(t, err)

	records, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].ID, "newest first")
	assert.Equal(t, "enc1", records[1].Ciphertext)
	assert.False(t, records[0].CreatedAt.IsZero())

	require.NoError(t, c.Delete(ctx, first))
	assert.ErrorIs(t, c.Delete(ctx, first), storage.ErrNotFound)

	records, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second, records[0].ID)
}

func TestStoreWithoutSession(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.List(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthExpired)
	_, err = c.Insert(ctx, "t", "e")
	assert.ErrorIs(t, err, storage.ErrAuthExpired)
	assert.ErrorIs(t, c.Delete(ctx, "x"), storage.ErrAuthExpired)
}

func TestExpiredTokenCheckedLocally(t *testing.T) {
	env := setupTestEnv(t, func(c *devserver.Config) {
		c.TokenTTL = time.Minute
		c.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	})
	c := env.client(t)
	ctx := context.Background()

	_, session, err := c.SignUp(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.Expired(time.Now()), "expiry comes from the token's exp claim")

	_, err = c.List(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthExpired)
}

func TestRevokedSessionIsAuthExpired(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()

	a := env.client(t)
	_, _, err := a.SignUp(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)

	// A second client picks up the persisted token and logs it out
	b := env.client(t)
	restored, err := b.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.NoError(t, b.SignOut(ctx))

	_, err = a.List(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthExpired)
}

func TestRestore(t *testing.T) {
	env := setupTestEnv(t, nil)
	ctx := context.Background()

	a := env.client(t)
	_, _, err := a.SignUp(ctx, "alice@example.com", "abcdef")
	require.NoError(t, err)

	b := env.client(t)
	events := &eventLog{}
	b.Subscribe(events.record)

	restored, err := b.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "alice@example.com", restored.User.Email)
	assert.Equal(t, []identity.EventKind{identity.SignedIn}, events.list())

	records, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRestoreDiscardsExpired(t *testing.T) {
	env := setupTestEnv(t, nil)
	c := env.client(t)

	expired, err := json.Marshal(identity.Session{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, keyring.New().Set(c.URL(), string(expired)))

	restored, err := c.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, restored)
	assert.False(t, c.HasPersisted())
}
