package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/illarion/vaultx/internal/config"
	"github.com/illarion/vaultx/internal/core"
	"github.com/illarion/vaultx/internal/crypto"
	"github.com/illarion/vaultx/internal/identity"
	"github.com/illarion/vaultx/internal/keyring"
	"github.com/illarion/vaultx/internal/remote"
	"github.com/illarion/vaultx/internal/storage"
)

// Vault is an opened backend with a locked session over it
type Vault struct {
	Session *core.Session
	Config  *config.Config

	local  *storage.LocalStore
	client *remote.Client
	log    *slog.Logger
	in     *bufio.Reader
}

// OpenVault connects the configured backend. Nothing is unlocked yet.
func OpenVault(cfg *config.Config, log *slog.Logger) (*Vault, error) {
	v := &Vault{Config: cfg, log: log, in: bufio.NewReader(os.Stdin)}

	var (
		store  storage.Store
		gate   core.Gate
		engine = cfg.Engine()
	)
	switch cfg.Backend {
	case config.BackendRemote:
		client, err := newClient(cfg, log)
		if err != nil {
			return nil, err
		}
		v.client = client
		store = client
		gate = core.NewRemoteGate(client)
	default:
		local, err := storage.Open(cfg.Local.Path)
		if err != nil {
			return nil, err
		}
		v.local = local
		store = local
		gate = core.NewLocalGate(local, engine)
	}

	v.Session = core.New(store, gate, core.Options{
		Engine:        engine,
		MinPassphrase: cfg.Session.MinPassphrase,
		Logger:        log,
	})
	return v, nil
}

func newClient(cfg *config.Config, log *slog.Logger) (*remote.Client, error) {
	timeout, err := cfg.RemoteTimeout()
	if err != nil {
		return nil, err
	}
	return remote.New(remote.Config{
		URL:     cfg.Remote.URL,
		AnonKey: cfg.Remote.AnonKey,
		Timeout: timeout,
		Tokens:  keyring.New(),
		Logger:  log,
	})
}

// Close locks the session and releases the backend
func (v *Vault) Close() {
	v.Session.Close()
	if v.local != nil {
		if err := v.local.Close(); err != nil {
			v.log.Warn("failed to close vault file", "error", err)
		}
	}
}

// Unlock asks for credentials and unlocks the session, warning about
// records that did not open
func (v *Vault) Unlock(ctx context.Context) (core.LoadReport, error) {
	creds, err := v.credentials(false)
	if err != nil {
		return core.LoadReport{}, err
	}
	defer clearCredentials(creds)

	report, err := v.Session.Unlock(ctx, creds)
	if err != nil {
		return report, err
	}
	warnDropped(os.Stderr, report)
	return report, nil
}

// Setup asks for new credentials and creates the vault
func (v *Vault) Setup(ctx context.Context) (core.SetupResult, error) {
	creds, err := v.credentials(true)
	if err != nil {
		return core.SetupResult{}, err
	}
	defer clearCredentials(creds)
	return v.Session.Setup(ctx, creds)
}

// credentials collects identity and passphrase. VAULTX_PASSPHRASE wins
// over prompting; for setup it also serves as the confirmation.
func (v *Vault) credentials(confirm bool) (core.Credentials, error) {
	var creds core.Credentials

	if v.client != nil {
		creds.Identity = v.Config.Remote.Email
		if creds.Identity == "" {
			email, err := v.Prompt("Email: ")
			if err != nil {
				return creds, err
			}
			creds.Identity = email
		}
	}

	if passphrase := core.PassphraseFromEnv(); passphrase != nil {
		creds.Passphrase = passphrase
		if confirm {
			creds.Confirm = append([]byte(nil), passphrase...)
		}
		return creds, nil
	}

	if confirm {
		passphrase, again, err := core.ReadPassphrasePair()
		if err != nil {
			return creds, err
		}
		creds.Passphrase, creds.Confirm = passphrase, again
		return creds, nil
	}

	passphrase, err := core.ReadPassphrase("Passphrase: ")
	if err != nil {
		return creds, err
	}
	creds.Passphrase = passphrase
	return creds, nil
}

// Prompt reads one line from stdin
func (v *Vault) Prompt(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := v.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptDefault reads one line, returning def for an empty answer
func (v *Vault) PromptDefault(prompt, def string) (string, error) {
	if def != "" {
		prompt = fmt.Sprintf("%s[%s] ", prompt, def)
	}
	answer, err := v.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// ReadSecret reads a secret without echo when stdin is a terminal
func (v *Vault) ReadSecret(prompt string) (string, error) {
	if !core.IsTerminal() {
		return v.Prompt(prompt)
	}
	secret, err := core.ReadPassphrase(prompt)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(secret)
	return string(secret), nil
}

func clearCredentials(creds core.Credentials) {
	crypto.ClearBytes(creds.Passphrase)
	crypto.ClearBytes(creds.Confirm)
}

func warnDropped(w io.Writer, report core.LoadReport) {
	switch {
	case report.AllDropped():
		fmt.Fprintf(w, "Warning: none of %d records could be opened\n", report.Total)
		fmt.Fprintf(w, "They may have been sealed with a different passphrase\n")
	case report.Dropped > 0:
		fmt.Fprintf(w, "Warning: %d of %d records could not be opened and are hidden\n", report.Dropped, report.Total)
	}
}

// NewLogger returns the CLI logger: text on stderr, warnings only unless
// verbose
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Describe turns an error into the message shown to the user. Wrong
// credentials never say which part was wrong.
func Describe(err error) string {
	var verr *core.ValidationError
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		return "vault not initialized\nRun 'vaultx setup' first"
	case errors.Is(err, core.ErrAlreadyExists):
		return "a vault already exists for this backend\nUse 'vaultx list' to open it"
	case errors.Is(err, core.ErrWrongCredentials):
		return "wrong credentials"
	case errors.Is(err, core.ErrPassphraseMismatch):
		return "passphrases do not match"
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, core.ErrLocked):
		return "vault is locked"
	case errors.Is(err, storage.ErrAuthExpired):
		return "session expired, the vault has been locked\nRun the command again to sign in"
	case errors.Is(err, storage.ErrNotFound):
		return "record not found"
	case errors.Is(err, identity.ErrRateLimited):
		return "too many attempts, try again later"
	case errors.Is(err, storage.ErrCorrupt):
		return "vault file is corrupt"
	case errors.Is(err, config.ErrUnknownBackend), errors.Is(err, config.ErrInvalid):
		return fmt.Sprintf("%s\nCheck %s or the VAULTX_* environment", err, "~/.vaultx/config.yaml")
	default:
		return err.Error()
	}
}

// HandleError prints err and exits
func HandleError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", Describe(err))
	os.Exit(1)
}

// requireRemote fails for commands that only make sense for a hosted vault
func requireRemote(cfg *config.Config, command string) error {
	if cfg.Backend != config.BackendRemote {
		return fmt.Errorf("'%s' needs the remote backend (backend: %s)", command, cfg.Backend)
	}
	return nil
}
