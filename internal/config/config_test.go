package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/vaultx/internal/crypto"
)

// isolate points HOME at a temp dir and clears VAULTX_* variables
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		"VAULTX_CONFIG", "VAULTX_BACKEND", "VAULTX_PATH", "VAULTX_URL",
		"VAULTX_ANON_KEY", "VAULTX_EMAIL", "VAULTX_SCHEME", "VAULTX_PBKDF2_ITERATIONS",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	return home
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, filepath.Join(home, ".vaultx", "vault.db"), cfg.Local.Path)
	assert.Equal(t, string(crypto.SchemePBKDF2GCM), cfg.Crypto.Scheme)
	assert.Equal(t, crypto.DefaultIters, cfg.Crypto.PBKDF2Iterations)
	assert.Equal(t, 6, cfg.Session.MinPassphrase)
	assert.Empty(t, cfg.Path())
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), `
backend: remote
remote:
  url: https://example.supabase.co
  anon_key: anon
  email: alice@example.com
  timeout: 5s
crypto:
  scheme: age-scrypt
session:
  min_passphrase: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Backend)
	assert.Equal(t, "https://example.supabase.co", cfg.Remote.URL)
	assert.Equal(t, "alice@example.com", cfg.Remote.Email)
	assert.Equal(t, "age-scrypt", cfg.Crypto.Scheme)
	assert.Equal(t, 10, cfg.Session.MinPassphrase)
	assert.Equal(t, path, cfg.Path())

	timeout, err := cfg.RemoteTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
	assert.Equal(t, crypto.SchemeAgeScrypt, cfg.Engine().Scheme())
}

func TestLoadDefaultFileFromHome(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".vaultx"), 0700))
	writeConfig(t, filepath.Join(home, ".vaultx"), "local:\n  path: ~/secrets/v.db\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "secrets", "v.db"), cfg.Local.Path)
}

func TestEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "backend: local\nlocal:\n  path: /tmp/file.db\n")
	t.Setenv("VAULTX_CONFIG", path)
	t.Setenv("VAULTX_PATH", "/tmp/env.db")
	t.Setenv("VAULTX_PBKDF2_ITERATIONS", "1000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Local.Path)
	assert.Equal(t, 1000, cfg.Crypto.PBKDF2Iterations)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	t.Setenv("VAULTX_BACKEND", "dropbox")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	t.Setenv("VAULTX_BACKEND", "remote")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)

	t.Setenv("VAULTX_BACKEND", "local")
	t.Setenv("VAULTX_SCHEME", "rot13")
	_, err = Load("")
	assert.ErrorIs(t, err, crypto.ErrUnknownScheme)

	t.Setenv("VAULTX_SCHEME", "")
	t.Setenv("VAULTX_PBKDF2_ITERATIONS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateTimeout(t *testing.T) {
	cfg := Default()
	cfg.Remote.Timeout = "soon"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}
