package crypto

import (
	"errors"
	"sync"
)

var (
	ErrEmptyPassphrase = errors.New("empty passphrase")
	ErrKeyDestroyed    = errors.New("key material destroyed")
)

// KeyMaterial holds the session passphrase for the lifetime of an unlocked
// session. Where the platform allows it the bytes live outside the Go heap,
// locked against swap and excluded from core dumps. It is never serialized.
type KeyMaterial struct {
	mu        sync.RWMutex
	data      []byte
	release   func([]byte) error
	destroyed bool
}

// NewKeyMaterial moves passphrase into protected memory. The source slice
// is zeroed before returning.
func NewKeyMaterial(passphrase []byte) (*KeyMaterial, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	data, release := allocProtected(len(passphrase))
	copy(data, passphrase)
	ClearBytes(passphrase)

	return &KeyMaterial{
		data:    data,
		release: release,
	}, nil
}

// Use lends the passphrase to fn. fn must not retain the slice.
// Destroy waits for in-flight calls to return.
func (k *KeyMaterial) Use(fn func(passphrase []byte)) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.destroyed {
		return ErrKeyDestroyed
	}
	fn(k.data)
	return nil
}

// Len returns the passphrase length, 0 once destroyed
func (k *KeyMaterial) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return 0
	}
	return len(k.data)
}

// Destroyed reports whether Destroy has been called
func (k *KeyMaterial) Destroyed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.destroyed
}

// Destroy zeroes and releases the passphrase. Idempotent.
func (k *KeyMaterial) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.destroyed {
		return
	}
	k.destroyed = true

	ClearBytes(k.data)
	if k.release != nil {
		_ = k.release(k.data)
	}
	k.data = nil
}
