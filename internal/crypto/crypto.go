package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize     = 32       // Salt size in bytes
	KeySize      = 32       // AES-256 key size
	NonceSize    = 12       // GCM nonce size
	TagSize      = 16       // GCM authentication tag size
	DefaultIters = 210000   // Default PBKDF2 iterations (OWASP minimum)
	MaxIters     = 10000000 // Upper bound accepted when opening
)

const (
	envelopeV1    = byte(0x01) // pbkdf2-gcm envelope marker
	headerSize    = 1 + 4 + SaltSize + NonceSize
	minEnvelopeSz = headerSize + TagSize
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrUnknownScheme     = errors.New("unknown sealing scheme")
)

// Scheme names the envelope format produced by Seal.
type Scheme string

const (
	SchemePBKDF2GCM Scheme = "pbkdf2-gcm"
	SchemeAgeScrypt Scheme = "age-scrypt"
)

// ParseScheme validates a scheme name from configuration
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(name) {
	case "", SchemePBKDF2GCM:
		return SchemePBKDF2GCM, nil
	case SchemeAgeScrypt:
		return SchemeAgeScrypt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

// Engine seals and opens record payloads under a passphrase.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	scheme      Scheme
	iterations  int
	workFactor  int
	fingerprint FingerprintParams
}

// Option configures an Engine
type Option func(*Engine)

// WithScheme selects the envelope format used by Seal
func WithScheme(s Scheme) Option {
	return func(e *Engine) { e.scheme = s }
}

// WithIterations sets the PBKDF2 iteration count for new envelopes
func WithIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.iterations = n
		}
	}
}

// WithScryptWorkFactor sets log2(N) for age scrypt envelopes
func WithScryptWorkFactor(logN int) Option {
	return func(e *Engine) {
		if logN > 0 {
			e.workFactor = logN
		}
	}
}

// WithFingerprintParams overrides the argon2id cost used by Fingerprint
func WithFingerprintParams(p FingerprintParams) Option {
	return func(e *Engine) { e.fingerprint = p }
}

// NewEngine creates an engine with the default scheme and costs
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scheme:      SchemePBKDF2GCM,
		iterations:  DefaultIters,
		workFactor:  DefaultScryptWorkFactor,
		fingerprint: DefaultFingerprintParams,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scheme returns the scheme used for new envelopes
func (e *Engine) Scheme() Scheme {
	return e.scheme
}

// Seal encrypts plaintext under the passphrase held by key and returns a
// self-describing base64 envelope. Every call uses a fresh salt and nonce.
// It fails only when key has been destroyed or the random source is broken.
func (e *Engine) Seal(plaintext string, key *KeyMaterial) (string, error) {
	var (
		raw []byte
		err error
	)
	useErr := key.Use(func(passphrase []byte) {
		switch e.scheme {
		case SchemeAgeScrypt:
			raw, err = sealAge([]byte(plaintext), passphrase, e.workFactor)
		default:
			raw, err = sealGCM([]byte(plaintext), passphrase, e.iterations)
		}
	})
	if useErr != nil {
		return "", useErr
	}
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Open reverses Seal. A wrong passphrase and a damaged envelope both
// yield ErrAuthFailed.
func (e *Engine) Open(envelope string, key *KeyMaterial) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil || len(raw) == 0 {
		return "", ErrAuthFailed
	}

	var plaintext []byte
	useErr := key.Use(func(passphrase []byte) {
		switch {
		case raw[0] == envelopeV1:
			plaintext, err = openGCM(raw, passphrase)
		case bytes.HasPrefix(raw, ageHeader):
			plaintext, err = openAge(raw, passphrase)
		default:
			err = ErrInvalidCiphertext
		}
	})
	if useErr != nil || err != nil {
		return "", ErrAuthFailed
	}

	result := string(plaintext)
	ClearBytes(plaintext)
	return result, nil
}

// KDF handles key derivation from passwords
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF(iterations int) (*KDF, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:       salt,
		Iterations: iterations,
	}, nil
}

// DeriveKey derives an encryption key from a password
func (k *KDF) DeriveKey(password []byte) []byte {
	return pbkdf2.Key(password, k.Salt, k.Iterations, KeySize, sha256.New)
}

// sealGCM lays out: marker | iterations (uint32 BE) | salt | nonce | ciphertext+tag.
// The header is bound to the ciphertext as additional data.
func sealGCM(plaintext, passphrase []byte, iterations int) ([]byte, error) {
	kdf, err := NewKDF(iterations)
	if err != nil {
		return nil, err
	}

	key := kdf.DeriveKey(passphrase)
	defer ClearBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+TagSize)
	out[0] = envelopeV1
	binary.BigEndian.PutUint32(out[1:5], uint32(iterations))
	copy(out[5:5+SaltSize], kdf.Salt)
	copy(out[5+SaltSize:headerSize], nonce)

	return gcm.Seal(out, nonce, plaintext, out[:headerSize]), nil
}

func openGCM(envelope, passphrase []byte) ([]byte, error) {
	if len(envelope) < minEnvelopeSz {
		return nil, ErrInvalidCiphertext
	}

	iterations := binary.BigEndian.Uint32(envelope[1:5])
	if iterations == 0 || iterations > MaxIters {
		return nil, ErrInvalidCiphertext
	}

	kdf := &KDF{
		Salt:       envelope[5 : 5+SaltSize],
		Iterations: int(iterations),
	}
	key := kdf.DeriveKey(passphrase)
	defer ClearBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := envelope[5+SaltSize : headerSize]
	plaintext, err := gcm.Open(nil, nonce, envelope[headerSize:], envelope[:headerSize])
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
