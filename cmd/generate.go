package cmd

import (
	"fmt"
	"io"

	"github.com/illarion/vaultx/internal/crypto"
)

// Generate prints count random passwords
func Generate(w io.Writer, length, count int) error {
	for range max(count, 1) {
		password, err := crypto.GeneratePassword(length)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, password)
	}
	return nil
}
