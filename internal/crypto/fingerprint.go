package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// fingerprintSalt separates fingerprints from every other use of the
// passphrase. Record keys use PBKDF2 or scrypt with random salts, so a
// fingerprint never equals any key material.
var fingerprintSalt = []byte("vaultx/fingerprint/v1")

// FingerprintParams are the argon2id costs of a fingerprint
type FingerprintParams struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	KeyLen  uint32
}

var DefaultFingerprintParams = FingerprintParams{
	Memory:  64 * 1024,
	Time:    3,
	Threads: 2,
	KeyLen:  32,
}

// Limits accepted when parsing a stored fingerprint
const (
	maxFingerprintMemory = 1 << 22
	maxFingerprintTime   = 64
	maxFingerprintKeyLen = 128
)

// Fingerprint returns the one-way digest used to check a local login
func (e *Engine) Fingerprint(passphrase []byte) string {
	return e.fingerprint.Fingerprint(passphrase)
}

// Fingerprint encodes as argon2id$v=19$m=<M>,t=<T>,p=<P>$<b64(digest)>
func (p FingerprintParams) Fingerprint(passphrase []byte) string {
	digest := argon2.IDKey(passphrase, fingerprintSalt, p.Time, p.Memory, p.Threads, p.KeyLen)
	defer ClearBytes(digest)

	return fmt.Sprintf("argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(digest),
	)
}

// VerifyFingerprint recomputes the digest with the parameters recorded in
// encoded and compares in constant time. Malformed input never matches.
func VerifyFingerprint(passphrase []byte, encoded string) bool {
	params, want, ok := parseFingerprint(encoded)
	if !ok {
		return false
	}
	got := argon2.IDKey(passphrase, fingerprintSalt, params.Time, params.Memory, params.Threads, params.KeyLen)
	defer ClearBytes(got)
	return ConstantTimeCompare(got, want)
}

func parseFingerprint(encoded string) (FingerprintParams, []byte, bool) {
	const prefix = "argon2id$"
	if !strings.HasPrefix(encoded, prefix) {
		return FingerprintParams{}, nil, false
	}
	parts := strings.Split(encoded[len(prefix):], "$")
	if len(parts) != 3 {
		return FingerprintParams{}, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "v=%d", &version); err != nil || version != argon2.Version {
		return FingerprintParams{}, nil, false
	}

	var p FingerprintParams
	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return FingerprintParams{}, nil, false
	}
	if p.Memory == 0 || p.Memory > maxFingerprintMemory || p.Time == 0 || p.Time > maxFingerprintTime || p.Threads == 0 {
		return FingerprintParams{}, nil, false
	}

	digest, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(digest) == 0 || len(digest) > maxFingerprintKeyLen {
		return FingerprintParams{}, nil, false
	}
	p.KeyLen = uint32(len(digest))
	return p, digest, true
}
