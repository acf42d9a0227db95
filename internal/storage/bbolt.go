package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket and slot names
var (
	VaultBucket     = []byte("vaultx")
	SlotFingerprint = []byte("vaultx_master")
	SlotRecords     = []byte("vaultx_data")
	SlotModified    = []byte("vaultx_modified")
)

var (
	ErrNoFingerprint     = errors.New("no fingerprint stored")
	ErrFingerprintExists = errors.New("fingerprint already stored")
)

// Compile-time interface checks
var (
	_ Store            = (*LocalStore)(nil)
	_ FingerprintStore = (*LocalStore)(nil)
)

// localRecord is the persisted shape of one entry in the records slot
type localRecord struct {
	ID  string `json:"id"`
	T   string `json:"t"`
	Enc string `json:"enc"`
}

// LocalStore keeps the fingerprint and sealed records in a BBolt file
type LocalStore struct {
	db *bolt.DB
}

// Open opens or creates a vault database, creating parent directories
// with owner-only permissions
func Open(path string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(VaultBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", VaultBucket, err)
	}

	return &LocalStore{db: db}, nil
}

// Close closes the database
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *LocalStore) Path() string {
	return s.db.Path()
}

// Fingerprint returns the stored login fingerprint
func (s *LocalStore) Fingerprint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var fingerprint string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(VaultBucket).Get(SlotFingerprint)
		if data == nil {
			return ErrNoFingerprint
		}
		fingerprint = string(data)
		return nil
	})
	if errors.Is(err, ErrNoFingerprint) {
		return "", err
	}
	return fingerprint, Wrap("read fingerprint", err)
}

// SetFingerprint replaces the stored login fingerprint
func (s *LocalStore) SetFingerprint(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(VaultBucket).Put(SlotFingerprint, []byte(fingerprint))
	})
	return Wrap("write fingerprint", err)
}

// SetFingerprintIfAbsent stores the login fingerprint unless one exists,
// returning ErrFingerprintExists in that case. Check and write share one
// transaction.
func (s *LocalStore) SetFingerprintIfAbsent(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(VaultBucket)
		if bucket.Get(SlotFingerprint) != nil {
			return ErrFingerprintExists
		}
		return bucket.Put(SlotFingerprint, []byte(fingerprint))
	})
	if errors.Is(err, ErrFingerprintExists) {
		return err
	}
	return Wrap("write fingerprint", err)
}

// HasFingerprint reports whether a vault has been set up
func (s *LocalStore) HasFingerprint(ctx context.Context) (bool, error) {
	_, err := s.Fingerprint(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoFingerprint):
		return false, nil
	default:
		return false, err
	}
}

// List returns records in insertion order
func (s *LocalStore) List(ctx context.Context) ([]SealedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []localRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		entries, err = readRecords(tx)
		return err
	})
	if err != nil {
		return nil, Wrap("list", err)
	}

	records := make([]SealedRecord, len(entries))
	for i, e := range entries {
		records[i] = SealedRecord{ID: e.ID, Title: e.T, Ciphertext: e.Enc}
	}
	return records, nil
}

// Insert appends a record under a fresh UUID
func (s *LocalStore) Insert(ctx context.Context, title, ciphertext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	err := s.db.Update(func(tx *bolt.Tx) error {
		entries, err := readRecords(tx)
		if err != nil {
			return err
		}
		entries = append(entries, localRecord{ID: id, T: title, Enc: ciphertext})
		return writeRecords(tx, entries)
	})
	if err != nil {
		return "", Wrap("insert", err)
	}
	return id, nil
}

// Delete removes the record with the given id
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		entries, err := readRecords(tx)
		if err != nil {
			return err
		}
		for i, e := range entries {
			if e.ID == id {
				entries = append(entries[:i], entries[i+1:]...)
				return writeRecords(tx, entries)
			}
		}
		return ErrNotFound
	})
	return Wrap("delete", err)
}

// Modified returns the time of the last Insert or Delete, zero if none
func (s *LocalStore) Modified() (time.Time, error) {
	var modified time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(VaultBucket).Get(SlotModified)
		if data == nil {
			return nil
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// readRecords decodes the records slot. A missing slot is an empty vault.
func readRecords(tx *bolt.Tx) ([]localRecord, error) {
	data := tx.Bucket(VaultBucket).Get(SlotRecords)
	if data == nil {
		return []localRecord{}, nil
	}
	var entries []localRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entries, nil
}

func writeRecords(tx *bolt.Tx, entries []localRecord) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	bucket := tx.Bucket(VaultBucket)
	if err := bucket.Put(SlotRecords, data); err != nil {
		return err
	}
	modified, _ := time.Now().MarshalBinary()
	return bucket.Put(SlotModified, modified)
}

// Compact rewrites the vault file with only the vault slots, dropping the
// free pages deleted records leave behind. The old file stays at
// <path>.backup until the compacted one has been reopened.
func (s *LocalStore) Compact() error {
	path := s.db.Path()
	compacted := path + ".compact"
	backup := path + ".backup"

	if err := s.copySlots(compacted); err != nil {
		os.Remove(compacted)
		return err
	}

	if err := s.db.Close(); err != nil {
		os.Remove(compacted)
		return fmt.Errorf("failed to close vault: %w", err)
	}
	if err := os.Rename(path, backup); err != nil {
		os.Remove(compacted)
		return s.reopen(path, fmt.Errorf("failed to back up vault: %w", err))
	}
	if err := os.Rename(compacted, path); err != nil {
		os.Rename(backup, path)
		return s.reopen(path, fmt.Errorf("failed to replace vault: %w", err))
	}

	if err := s.reopen(path, nil); err != nil {
		return fmt.Errorf("%w (previous vault kept at %s)", err, backup)
	}
	os.Remove(backup)
	return nil
}

// copySlots writes the vault bucket slots into a fresh database at path
func (s *LocalStore) copySlots(path string) error {
	dst, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to create compacted vault: %w", err)
	}

	err = s.db.View(func(src *bolt.Tx) error {
		from := src.Bucket(VaultBucket)
		return dst.Update(func(tx *bolt.Tx) error {
			to, err := tx.CreateBucket(VaultBucket)
			if err != nil {
				return err
			}
			for _, slot := range [][]byte{SlotFingerprint, SlotRecords, SlotModified} {
				if v := from.Get(slot); v != nil {
					if err := to.Put(slot, v); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy vault: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close compacted vault: %w", err)
	}
	return nil
}

// reopen opens path as the store database and returns cause, joined with
// any open failure
func (s *LocalStore) reopen(path string, cause error) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return errors.Join(cause, fmt.Errorf("failed to reopen vault: %w", err))
	}
	s.db = db
	return cause
}
