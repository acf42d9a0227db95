package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrAuthExpired = errors.New("authentication expired")
	ErrCorrupt     = errors.New("record collection is corrupt")
)

// SealedRecord is the persisted form of a credential: a clear title and an
// opaque envelope. CreatedAt is zero for backends that do not track it.
type SealedRecord struct {
	ID         string
	Title      string
	Ciphertext string
	CreatedAt  time.Time
}

// Store moves sealed records. Implementations never see key material and
// never attempt decryption.
type Store interface {
	// List returns every record in backend order.
	List(ctx context.Context) ([]SealedRecord, error)
	// Insert persists a record and returns its backend-assigned id.
	Insert(ctx context.Context, title, ciphertext string) (string, error)
	// Delete removes a record. Unknown ids yield ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// FingerprintStore persists the local login fingerprint
type FingerprintStore interface {
	Fingerprint(ctx context.Context) (string, error)
	SetFingerprint(ctx context.Context, fingerprint string) error
	SetFingerprintIfAbsent(ctx context.Context, fingerprint string) error
}

// Error reports a backend failure (unreachable, rejected write, corrupt data)
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with op unless it is one of the sentinels callers
// branch on.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthExpired) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}
