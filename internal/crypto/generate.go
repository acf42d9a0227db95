package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	DefaultPasswordLength = 16
	passwordAlphabet      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()_+"
)

var ErrInvalidLength = errors.New("password length must be positive")

// GeneratePassword returns n characters drawn uniformly from the
// generator alphabet
func GeneratePassword(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}

	max := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
