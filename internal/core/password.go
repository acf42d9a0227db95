package core

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// PassphraseEnv is read by non-interactive invocations
const PassphraseEnv = "VAULTX_PASSPHRASE"

// ReadPassphrase reads a passphrase from the terminal without echoing
func ReadPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}

// ReadPassphrasePair reads a new passphrase and its confirmation. Whether
// they match is checked by Setup.
func ReadPassphrasePair() (passphrase, confirm []byte, err error) {
	passphrase, err = ReadPassphrase("New passphrase: ")
	if err != nil {
		return nil, nil, err
	}
	confirm, err = ReadPassphrase("Confirm passphrase: ")
	if err != nil {
		return nil, nil, err
	}
	return passphrase, confirm, nil
}

// PassphraseFromEnv returns a copy of VAULTX_PASSPHRASE, or nil if unset
func PassphraseFromEnv() []byte {
	passphrase := os.Getenv(PassphraseEnv)
	if passphrase == "" {
		return nil
	}
	return []byte(passphrase)
}

// IsTerminal reports whether stdin is interactive
func IsTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}
