// Package config loads vaultx configuration.
//
// Values come from, in increasing priority:
//   - built-in defaults
//   - a YAML file given by --config or VAULTX_CONFIG, or
//     ~/.vaultx/config.yaml when that exists
//   - VAULTX_* environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/illarion/vaultx/internal/crypto"
)

// Backend selects where sealed records live.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrInvalid        = errors.New("invalid configuration")
)

// Config is the complete vaultx configuration.
type Config struct {
	// Backend is "local" (default) or "remote".
	Backend Backend `yaml:"backend"`

	Local   LocalConfig   `yaml:"local"`
	Remote  RemoteConfig  `yaml:"remote"`
	Crypto  CryptoConfig  `yaml:"crypto"`
	Session SessionConfig `yaml:"session"`

	// path is the file the config was read from, empty if none.
	path string
}

// LocalConfig configures the on-disk vault.
type LocalConfig struct {
	// Path of the bbolt file. Default: ~/.vaultx/vault.db
	Path string `yaml:"path"`
}

// RemoteConfig configures the hosted backend.
type RemoteConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
	// Email is the default identity for unlock prompts.
	Email string `yaml:"email"`
	// Timeout is a Go duration string. Default: 15s
	Timeout string `yaml:"timeout"`
}

// CryptoConfig selects the envelope scheme for new records. Existing
// records open regardless of this setting.
type CryptoConfig struct {
	Scheme           string `yaml:"scheme"`
	PBKDF2Iterations int    `yaml:"pbkdf2_iterations"`
	ScryptWorkFactor int    `yaml:"scrypt_work_factor"`
}

// SessionConfig tunes the vault session.
type SessionConfig struct {
	MinPassphrase int `yaml:"min_passphrase"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Backend: BackendLocal,
		Local:   LocalConfig{Path: filepath.Join(Dir(), "vault.db")},
		Remote:  RemoteConfig{Timeout: "15s"},
		Crypto: CryptoConfig{
			Scheme:           string(crypto.SchemePBKDF2GCM),
			PBKDF2Iterations: crypto.DefaultIters,
			ScryptWorkFactor: crypto.DefaultScryptWorkFactor,
		},
		Session: SessionConfig{MinPassphrase: 6},
	}
}

// Dir is the per-user vaultx directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vaultx"
	}
	return filepath.Join(home, ".vaultx")
}

// Load builds the configuration. An explicit path (flag or VAULTX_CONFIG)
// must exist; the default path is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if path = os.Getenv("VAULTX_CONFIG"); path != "" {
			explicit = true
		} else {
			path = filepath.Join(Dir(), "config.yaml")
		}
	}

	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	} else {
		cfg.path = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv overrides file values with VAULTX_* variables.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("VAULTX_BACKEND"); ok {
		c.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := os.LookupEnv("VAULTX_PATH"); ok {
		c.Local.Path = v
	}
	if v, ok := os.LookupEnv("VAULTX_URL"); ok {
		c.Remote.URL = v
	}
	if v, ok := os.LookupEnv("VAULTX_ANON_KEY"); ok {
		c.Remote.AnonKey = v
	}
	if v, ok := os.LookupEnv("VAULTX_EMAIL"); ok {
		c.Remote.Email = v
	}
	if v, ok := os.LookupEnv("VAULTX_SCHEME"); ok {
		c.Crypto.Scheme = v
	}
	if v, ok := os.LookupEnv("VAULTX_PBKDF2_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VAULTX_PBKDF2_ITERATIONS has invalid value %q: %w", v, err)
		}
		c.Crypto.PBKDF2Iterations = n
	}
	return nil
}

// expandPaths resolves ~ and environment variables in file paths.
func (c *Config) expandPaths() {
	p := os.ExpandEnv(c.Local.Path)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
		}
	}
	c.Local.Path = p
}

// Validate rejects settings no component can honour.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.Local.Path == "" {
			return fmt.Errorf("%w: local.path is empty", ErrInvalid)
		}
	case BackendRemote:
		if c.Remote.URL == "" || c.Remote.AnonKey == "" {
			return fmt.Errorf("%w: remote backend needs remote.url and remote.anon_key", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	if _, err := crypto.ParseScheme(c.Crypto.Scheme); err != nil {
		return err
	}
	if c.Crypto.PBKDF2Iterations < 0 || c.Crypto.PBKDF2Iterations > crypto.MaxIters {
		return fmt.Errorf("%w: pbkdf2_iterations out of range", ErrInvalid)
	}
	if _, err := c.RemoteTimeout(); err != nil {
		return err
	}
	if c.Session.MinPassphrase < 0 {
		return fmt.Errorf("%w: min_passphrase is negative", ErrInvalid)
	}
	return nil
}

// RemoteTimeout parses remote.timeout. Empty means zero (client default).
func (c *Config) RemoteTimeout() (time.Duration, error) {
	if c.Remote.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Remote.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: remote.timeout %q", ErrInvalid, c.Remote.Timeout)
	}
	return d, nil
}

// Engine builds the crypto engine for this configuration.
func (c *Config) Engine() *crypto.Engine {
	scheme, _ := crypto.ParseScheme(c.Crypto.Scheme)
	return crypto.NewEngine(
		crypto.WithScheme(scheme),
		crypto.WithIterations(c.Crypto.PBKDF2Iterations),
		crypto.WithScryptWorkFactor(c.Crypto.ScryptWorkFactor),
	)
}

// Path returns the file the configuration was read from, if any.
func (c *Config) Path() string {
	return c.path
}
