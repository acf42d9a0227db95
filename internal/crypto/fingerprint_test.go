package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	engine := testEngine()

	first := engine.Fingerprint([]byte("abcdef"))
	second := engine.Fingerprint([]byte("abcdef"))
	other := engine.Fingerprint([]byte("abcdeg"))

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.True(t, strings.HasPrefix(first, "argon2id$v=19$m=1024,t=1,p=1$"))
	assert.NotContains(t, first, "abcdef")
}

func TestVerifyFingerprint(t *testing.T) {
	encoded := testFingerprint.Fingerprint([]byte("abcdef"))

	assert.True(t, VerifyFingerprint([]byte("abcdef"), encoded))
	assert.False(t, VerifyFingerprint([]byte("abcde"), encoded))
	assert.False(t, VerifyFingerprint([]byte(""), encoded))
}

func TestVerifyFingerprintMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"bef57ec7f53a6d40beb640a780a639c83bc29ac8a9816f1fc6c5c6dcd93c4721", // bare sha256 hex
		"argon2id$v=19$m=1024,t=1,p=1",
		"argon2id$v=18$m=1024,t=1,p=1$AAAA",
		"argon2id$v=19$m=0,t=1,p=1$AAAA",
		"argon2id$v=19$m=99999999,t=1,p=1$AAAA",
		"argon2id$v=19$m=1024,t=1,p=1$!!!",
	} {
		assert.False(t, VerifyFingerprint([]byte("abcdef"), encoded), encoded)
	}
}

func TestFingerprintIsNotKeyMaterial(t *testing.T) {
	// The fingerprint digest must not open records sealed under the passphrase.
	engine := testEngine()
	key := testKey(t, "abcdef")

	sealed, err := engine.Seal("payload", key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	fp := engine.Fingerprint([]byte("abcdef"))
	_, err = engine.Open(sealed, testKey(t, fp))
	assert.ErrorIs(t, err, ErrAuthFailed)
}
