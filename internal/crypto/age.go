package crypto

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

const (
	DefaultScryptWorkFactor = 18 // age's own default
	maxScryptWorkFactor     = 22
)

var ageHeader = []byte("age-encryption.org/v1\n")

// sealAge encrypts to a single scrypt passphrase recipient. The scrypt salt
// and the payload nonce live inside the age header.
func sealAge(plaintext, passphrase []byte, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(workFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func openAge(envelope, passphrase []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(string(passphrase))
	if err != nil {
		return nil, ErrAuthFailed
	}
	identity.SetMaxWorkFactor(maxScryptWorkFactor)

	r, err := age.Decrypt(bytes.NewReader(envelope), identity)
	if err != nil {
		return nil, ErrAuthFailed
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
