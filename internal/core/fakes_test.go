package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/illarion/vaultx/internal/crypto"
	"github.com/illarion/vaultx/internal/identity"
	"github.com/illarion/vaultx/internal/storage"
)

func testEngine() *crypto.Engine {
	return crypto.NewEngine(
		crypto.WithIterations(1000),
		crypto.WithFingerprintParams(crypto.FingerprintParams{Memory: 1024, Time: 1, Threads: 1, KeyLen: 32}),
	)
}

func newLocalSession(t *testing.T) (*Session, *storage.LocalStore) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := New(store, NewLocalGate(store, testEngine()), Options{Engine: testEngine()})
	t.Cleanup(s.Close)
	return s, store
}

func newRemoteSession(t *testing.T) (*Session, *memStore, *fakeProvider) {
	t.Helper()
	store := &memStore{}
	provider := newFakeProvider()
	s := New(store, NewRemoteGate(provider), Options{Engine: testEngine()})
	t.Cleanup(s.Close)
	return s, store, provider
}

func creds(identity, passphrase string) Credentials {
	return Credentials{Identity: identity, Passphrase: []byte(passphrase), Confirm: []byte(passphrase)}
}

// memStore is an in-memory storage.Store with injectable failures
type memStore struct {
	mu      sync.Mutex
	records []storage.SealedRecord
	next    int

	listErr   error
	insertErr error
	deleteErr error
	// onList runs inside List before it returns
	onList func()
}

func (m *memStore) List(ctx context.Context) ([]storage.SealedRecord, error) {
	m.mu.Lock()
	hook, err := m.onList, m.listErr
	out := append([]storage.SealedRecord(nil), m.records...)
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memStore) Insert(ctx context.Context, title, ciphertext string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.next++
	id := fmt.Sprintf("rec-%d", m.next)
	m.records = append(m.records, storage.SealedRecord{ID: id, Title: title, Ciphertext: ciphertext, CreatedAt: time.Now()})
	return id, nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) set(fn func(m *memStore)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// fakeProvider accepts any registered email/password pair
type fakeProvider struct {
	identity.Notifier

	mu       sync.Mutex
	users    map[string]string
	confirm  bool
	session  *identity.Session
	signOuts int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{users: make(map[string]string)}
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*identity.User, *identity.Session, error) {
	p.mu.Lock()
	if _, ok := p.users[email]; ok {
		p.mu.Unlock()
		return nil, nil, identity.ErrUserExists
	}
	p.users[email] = password
	user := &identity.User{ID: "user-" + email, Email: email}
	if p.confirm {
		p.mu.Unlock()
		return user, nil, nil
	}
	session := p.issue(*user)
	p.mu.Unlock()

	p.Emit(identity.Event{Kind: identity.SignedIn, Session: session})
	return user, session, nil
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	if stored, ok := p.users[email]; !ok || stored != password {
		p.mu.Unlock()
		return nil, identity.ErrInvalidCredentials
	}
	session := p.issue(identity.User{ID: "user-" + email, Email: email})
	p.mu.Unlock()

	p.Emit(identity.Event{Kind: identity.SignedIn, Session: session})
	return session, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	had := p.session != nil
	p.session = nil
	p.signOuts++
	p.mu.Unlock()

	if had {
		p.Emit(identity.Event{Kind: identity.SignedOut})
	}
	return nil
}

func (p *fakeProvider) GetSession(ctx context.Context) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

func (p *fakeProvider) GetUser(ctx context.Context) (*identity.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, identity.ErrNoSession
	}
	user := p.session.User
	return &user, nil
}

// restore simulates a session appearing without a password sign-in
func (p *fakeProvider) restore(email string) {
	p.mu.Lock()
	session := p.issue(identity.User{ID: "user-" + email, Email: email})
	p.mu.Unlock()
	p.Emit(identity.Event{Kind: identity.SignedIn, Session: session})
}

func (p *fakeProvider) hasSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

func (p *fakeProvider) issue(user identity.User) *identity.Session {
	p.session = &identity.Session{AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour), User: user}
	return p.session
}
