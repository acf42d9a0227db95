package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/illarion/vaultx/internal/codec"
	"github.com/illarion/vaultx/internal/crypto"
	"github.com/illarion/vaultx/internal/storage"
)

const DefaultMinPassphrase = 6

// State of a vault session
type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Record is an opened credential. It exists only in memory while the
// session is unlocked.
type Record struct {
	ID        string
	Title     string
	Username  string
	Secret    string
	CreatedAt time.Time
}

// LoadReport counts the outcome of the last load. Dropped records failed
// to open with the current key.
type LoadReport struct {
	Total   int
	Opened  int
	Dropped int
}

// AllDropped reports a non-empty vault where nothing opened, which for a
// hosted vault usually means a passphrase other than the one the records
// were sealed with.
func (r LoadReport) AllDropped() bool {
	return r.Total > 0 && r.Opened == 0
}

// SetupResult describes the session after Setup
type SetupResult struct {
	// PendingConfirmation is set when the account exists but the provider
	// issued no session yet.
	PendingConfirmation bool
	Report              LoadReport
}

// Options tune a Session. Zero values select defaults.
type Options struct {
	Engine        *crypto.Engine
	MinPassphrase int
	Concurrency   int
	Logger        *slog.Logger
}

// Session is a single vault session over one store and one gate.
// Sessions share nothing; two sessions never see each other's keys or
// records.
type Session struct {
	// ops serializes operations that reach the backend. mu guards the
	// fields below and is never held across backend calls, so Lock never
	// waits on the network.
	ops sync.Mutex
	mu  sync.Mutex

	store  storage.Store
	gate   Gate
	engine *crypto.Engine
	log    *slog.Logger

	minPassphrase int
	concurrency   int
	stopWatch     func()

	state   State
	key     *crypto.KeyMaterial
	records []Record
	last    LoadReport
	// epoch changes on every Lock, invalidating work begun before it
	epoch uint64
}

// New creates a locked session
func New(store storage.Store, gate Gate, opts Options) *Session {
	s := &Session{
		store:         store,
		gate:          gate,
		engine:        opts.Engine,
		log:           opts.Logger,
		minPassphrase: opts.MinPassphrase,
		concurrency:   opts.Concurrency,
	}
	if s.engine == nil {
		s.engine = crypto.NewEngine()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.minPassphrase <= 0 {
		s.minPassphrase = DefaultMinPassphrase
	}
	if s.concurrency <= 0 {
		s.concurrency = runtime.GOMAXPROCS(0)
	}

	if w, ok := gate.(watcher); ok {
		s.stopWatch = w.Watch(s.foreignSignIn)
	}
	return s
}

// Close locks the session and stops watching the identity provider
func (s *Session) Close() {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.Lock()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Setup creates a new vault. A local vault is unlocked immediately; a
// hosted one is unlocked only if the provider issued a session.
func (s *Session) Setup(ctx context.Context, creds Credentials) (SetupResult, error) {
	if err := s.validateSetup(creds); err != nil {
		return SetupResult{}, err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	epoch, err := s.beginUnlock()
	if err != nil {
		return SetupResult{}, err
	}

	established, err := s.gate.Register(ctx, creds)
	if err != nil {
		s.abortUnlock(epoch)
		return SetupResult{}, err
	}
	if !established {
		s.abortUnlock(epoch)
		s.log.Info("account created, confirmation pending", "identity", creds.Identity)
		return SetupResult{PendingConfirmation: true}, nil
	}

	if err := s.finishUnlock(epoch, creds.Passphrase); err != nil {
		return SetupResult{}, err
	}
	report, err := s.firstLoad(ctx)
	return SetupResult{Report: report}, err
}

// Unlock verifies credentials, derives the session key and loads the
// working set. The returned report counts records that failed to open.
func (s *Session) Unlock(ctx context.Context, creds Credentials) (LoadReport, error) {
	if s.gate.RequiresIdentity() && strings.TrimSpace(creds.Identity) == "" {
		return LoadReport{}, invalid("identity", ErrIdentityRequired)
	}
	if len(creds.Passphrase) == 0 {
		return LoadReport{}, invalid("passphrase", ErrEmptyField)
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	epoch, err := s.beginUnlock()
	if err != nil {
		return LoadReport{}, err
	}

	if err := s.gate.Verify(ctx, creds); err != nil {
		s.abortUnlock(epoch)
		if errors.Is(err, ErrWrongCredentials) {
			s.log.Debug("unlock rejected")
		}
		return LoadReport{}, err
	}

	if err := s.finishUnlock(epoch, creds.Passphrase); err != nil {
		return LoadReport{}, err
	}
	return s.firstLoad(ctx)
}

// LoadAll replaces the working set with every record that opens under
// the session key
func (s *Session) LoadAll(ctx context.Context) (LoadReport, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.loadAll(ctx)
}

// Save seals a new record and reloads the working set
func (s *Session) Save(ctx context.Context, title, username, secret string) (string, error) {
	if err := validateRecord(title, username, secret); err != nil {
		return "", err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	id, err := s.insert(ctx, title, username, secret)
	if err != nil {
		return "", err
	}
	if _, err := s.loadAll(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// Replace stores new contents for an existing record. The new record is
// inserted before the old one is deleted, so a failure in between leaves
// a duplicate rather than a loss. The record gets a new id. If the old
// record is already gone the insert is undone and ErrNotFound returned.
func (s *Session) Replace(ctx context.Context, id, title, username, secret string) (string, error) {
	if err := validateRecord(title, username, secret); err != nil {
		return "", err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	newID, err := s.insert(ctx, title, username, secret)
	if err != nil {
		return "", err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if s.storeFailure(err) {
			return newID, err
		}
		if !errors.Is(err, storage.ErrNotFound) {
			s.loadAll(ctx)
			return newID, err
		}
		if undoErr := s.store.Delete(ctx, newID); undoErr != nil {
			s.log.Warn("failed to remove replacement of a deleted record", "id", newID, "error", undoErr)
			s.storeFailure(undoErr)
		}
		s.loadAll(ctx)
		return "", fmt.Errorf("replace %s: %w", id, err)
	}
	if _, err := s.loadAll(ctx); err != nil {
		return newID, err
	}
	return newID, nil
}

// Remove deletes a record. ErrNotFound means the working set was stale;
// it is reloaded either way.
func (s *Session) Remove(ctx context.Context, id string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	if _, _, err := s.snapshot(); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if s.storeFailure(err) {
			return err
		}
		if errors.Is(err, storage.ErrNotFound) {
			s.loadAll(ctx)
		}
		return err
	}
	_, err := s.loadAll(ctx)
	return err
}

// Lock discards the key and every opened record, then releases any
// identity session. It never fails and may be called in any state.
func (s *Session) Lock() {
	s.mu.Lock()
	wasUnlocked := s.state != Locked
	s.epoch++
	if s.key != nil {
		s.key.Destroy()
		s.key = nil
	}
	s.records = nil
	s.last = LoadReport{}
	s.state = Locked
	s.mu.Unlock()

	if wasUnlocked {
		s.log.Debug("vault locked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.gate.Release(ctx); err != nil {
		s.log.Debug("failed to release identity session", "error", err)
	}
}

// Records returns a copy of the working set, newest first when the store
// orders that way
func (s *Session) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Get returns a record by id
func (s *Session) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Search matches query case-insensitively against title and username.
// An empty query returns everything.
func (s *Session) Search(query string) []Record {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []Record
	for _, r := range s.records {
		if query == "" ||
			strings.Contains(strings.ToLower(r.Title), query) ||
			strings.Contains(strings.ToLower(r.Username), query) {
			matches = append(matches, r)
		}
	}
	return matches
}

// LastLoad returns the report of the most recent successful load
func (s *Session) LastLoad() LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) validateSetup(creds Credentials) error {
	if s.gate.RequiresIdentity() && strings.TrimSpace(creds.Identity) == "" {
		return invalid("identity", ErrIdentityRequired)
	}
	if len(creds.Passphrase) == 0 {
		return invalid("passphrase", ErrEmptyField)
	}
	if len([]rune(string(creds.Passphrase))) < s.minPassphrase {
		return invalid("passphrase", fmt.Errorf("%w: need at least %d characters", ErrPassphraseTooShort, s.minPassphrase))
	}
	if !crypto.ConstantTimeCompare(creds.Passphrase, creds.Confirm) {
		return invalid("confirm", ErrPassphraseMismatch)
	}
	return nil
}

func validateRecord(title, username, secret string) error {
	switch {
	case strings.TrimSpace(title) == "":
		return invalid("title", ErrEmptyField)
	case strings.TrimSpace(username) == "":
		return invalid("username", ErrEmptyField)
	case secret == "":
		return invalid("secret", ErrEmptyField)
	}
	return nil
}

func (s *Session) beginUnlock() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Locked {
		return 0, ErrAlreadyUnlocked
	}
	s.epoch++
	s.state = Unlocking
	return s.epoch, nil
}

func (s *Session) abortUnlock(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch {
		s.state = Locked
	}
}

// finishUnlock installs key material derived from a copy of passphrase.
// A Lock that raced the gate check wins.
func (s *Session) finishUnlock(epoch uint64, passphrase []byte) error {
	key, err := crypto.NewKeyMaterial(append([]byte(nil), passphrase...))
	if err != nil {
		s.abortUnlock(epoch)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.state != Unlocking {
		key.Destroy()
		return ErrLocked
	}
	s.key = key
	s.records = nil
	s.state = Unlocked
	return nil
}

func (s *Session) snapshot() (*crypto.KeyMaterial, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked {
		return nil, 0, ErrLocked
	}
	return s.key, s.epoch, nil
}

// storeFailure locks the session when the backend reports the
// authenticated session is gone. It reports whether it did.
func (s *Session) storeFailure(err error) bool {
	if !errors.Is(err, storage.ErrAuthExpired) {
		return false
	}
	s.log.Warn("backend session expired, locking vault")
	s.Lock()
	return true
}

func (s *Session) insert(ctx context.Context, title, username, secret string) (string, error) {
	key, _, err := s.snapshot()
	if err != nil {
		return "", err
	}

	payload, err := codec.Serialize(username, secret)
	if err != nil {
		return "", err
	}
	envelope, err := s.engine.Seal(payload, key)
	if errors.Is(err, crypto.ErrKeyDestroyed) {
		return "", ErrLocked
	}
	if err != nil {
		return "", fmt.Errorf("failed to seal record: %w", err)
	}

	id, err := s.store.Insert(ctx, title, envelope)
	if err != nil {
		s.storeFailure(err)
		return "", err
	}
	s.log.Debug("record saved", "id", id)
	return id, nil
}

// firstLoad is the load that completes Unlock and Setup. A session that
// cannot load its working set does not stay unlocked.
func (s *Session) firstLoad(ctx context.Context) (LoadReport, error) {
	report, err := s.loadAll(ctx)
	if err != nil {
		if s.State() != Locked {
			s.Lock()
		}
		return LoadReport{}, err
	}
	return report, nil
}

func (s *Session) loadAll(ctx context.Context) (LoadReport, error) {
	key, epoch, err := s.snapshot()
	if err != nil {
		return LoadReport{}, err
	}

	sealed, err := s.store.List(ctx)
	if err != nil {
		s.storeFailure(err)
		return LoadReport{}, err
	}

	opened, err := s.openAll(ctx, sealed, key)
	if err != nil {
		return LoadReport{}, err
	}

	records := make([]Record, 0, len(opened))
	for _, r := range opened {
		if r != nil {
			records = append(records, *r)
		}
	}
	report := LoadReport{
		Total:   len(sealed),
		Opened:  len(records),
		Dropped: len(sealed) - len(records),
	}

	s.mu.Lock()
	if s.epoch != epoch || s.state != Unlocked {
		s.mu.Unlock()
		return LoadReport{}, ErrLocked
	}
	s.records = records
	s.last = report
	s.mu.Unlock()

	switch {
	case report.AllDropped():
		s.log.Warn("no records could be opened with this passphrase", "total", report.Total)
	case report.Dropped > 0:
		s.log.Warn("some records could not be opened", "dropped", report.Dropped, "total", report.Total)
	}
	return report, nil
}

// openAll opens records in parallel. Slots of records that fail to open
// or decode stay nil. Order follows sealed.
func (s *Session) openAll(ctx context.Context, sealed []storage.SealedRecord, key *crypto.KeyMaterial) ([]*Record, error) {
	opened := make([]*Record, len(sealed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sr := range sealed {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plaintext, err := s.engine.Open(sr.Ciphertext, key)
			if err != nil {
				s.log.Debug("dropping record", "id", sr.ID, "error", err)
				return nil
			}
			payload, err := codec.Deserialize(plaintext)
			if err != nil {
				s.log.Debug("dropping record", "id", sr.ID, "error", err)
				return nil
			}
			opened[i] = &Record{
				ID:        sr.ID,
				Title:     sr.Title,
				Username:  payload.Username,
				Secret:    payload.Secret,
				CreatedAt: sr.CreatedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return opened, nil
}

// foreignSignIn handles a provider session the vault did not create
func (s *Session) foreignSignIn() {
	s.log.Warn("identity session established outside the vault, locking")
	s.Lock()
}
