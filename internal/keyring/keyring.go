// Package keyring keeps the hosted identity session in the OS keyring so
// it survives between invocations. Passphrases are never stored.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "vaultx"

var ErrNotFound = errors.New("no stored session")

// Store reads and writes one entry per account under the vaultx service
type Store struct {
	service string
}

// New returns a store under the default service name
func New() *Store {
	return &Store{service: serviceName}
}

// Get returns the stored value for account
func (s *Store) Get(account string) (string, error) {
	value, err := keyring.Get(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return value, err
}

// Set stores value for account, replacing any previous one
func (s *Store) Set(account, value string) error {
	return keyring.Set(s.service, account, value)
}

// Delete removes the entry for account. A missing entry is not an error.
func (s *Store) Delete(account string) error {
	err := keyring.Delete(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Has reports whether account has a stored entry
func (s *Store) Has(account string) bool {
	_, err := s.Get(account)
	return err == nil
}
