package core

import "errors"

var (
	ErrNotInitialized     = errors.New("vault not initialized")
	ErrAlreadyExists      = errors.New("vault already exists")
	ErrWrongCredentials   = errors.New("wrong credentials")
	ErrLocked             = errors.New("vault is locked")
	ErrAlreadyUnlocked    = errors.New("vault is already unlocked")
	ErrEmptyField         = errors.New("field is required")
	ErrPassphraseTooShort = errors.New("passphrase too short")
	ErrPassphraseMismatch = errors.New("passphrases do not match")
	ErrIdentityRequired   = errors.New("identity is required")
)

// ValidationError rejects input before any backend call is made
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
