package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/vaultx/internal/config"
	"github.com/illarion/vaultx/internal/core"
	"github.com/illarion/vaultx/internal/identity"
	"github.com/illarion/vaultx/internal/storage"
)

const testPassphrase = "correct horse"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Local.Path = filepath.Join(t.TempDir(), "vault.db")
	cfg.Crypto.PBKDF2Iterations = 1000
	return cfg
}

func openVault(t *testing.T, cfg *config.Config) *Vault {
	t.Helper()
	t.Setenv(core.PassphraseEnv, testPassphrase)

	v, err := OpenVault(cfg, discardLogger())
	require.NoError(t, err)
	return v
}

// setupVault returns an unlocked, freshly created local vault
func setupVault(t *testing.T) *Vault {
	t.Helper()
	v := openVault(t, testConfig(t))
	t.Cleanup(v.Close)

	var out bytes.Buffer
	require.NoError(t, Setup(context.Background(), v, &out))
	require.Contains(t, out.String(), "Vault created")
	require.Equal(t, core.Unlocked, v.Session.State())
	return v
}

// feed replaces stdin for prompts
func feed(v *Vault, lines ...string) {
	input := strings.Join(lines, "\n")
	if len(lines) > 0 {
		input += "\n"
	}
	v.in = bufio.NewReader(strings.NewReader(input))
}

func TestSetupTwice(t *testing.T) {
	v := setupVault(t)
	v.Session.Lock()

	err := Setup(context.Background(), v, io.Discard)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestAddListShow(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	feed(v, "hunter22")
	var out bytes.Buffer
	require.NoError(t, Add(ctx, v, &out, AddOptions{Title: "GitHub", Username: "alice"}))
	assert.Contains(t, out.String(), `Saved "GitHub"`)

	out.Reset()
	require.NoError(t, List(ctx, v, &out))
	assert.Contains(t, out.String(), "TITLE")
	assert.Contains(t, out.String(), "GitHub")
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "1 record")
	assert.NotContains(t, out.String(), "hunter22")

	out.Reset()
	require.NoError(t, Show(ctx, v, &out, "github", false))
	assert.Contains(t, out.String(), "********")
	assert.NotContains(t, out.String(), "hunter22")

	out.Reset()
	require.NoError(t, Show(ctx, v, &out, "GitHub", true))
	assert.Contains(t, out.String(), "hunter22")
}

func TestAddPromptsForMissingFields(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	feed(v, "Forum", "carol", "pa55word")
	require.NoError(t, Add(ctx, v, io.Discard, AddOptions{}))

	records := v.Session.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Forum", records[0].Title)
	assert.Equal(t, "carol", records[0].Username)
	assert.Equal(t, "pa55word", records[0].Secret)
}

func TestAddGenerate(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	var out bytes.Buffer
	require.NoError(t, Add(ctx, v, &out, AddOptions{Title: "Bank", Username: "bob", Generate: true, Length: 20}))

	records := v.Session.Records()
	require.Len(t, records, 1)
	assert.Len(t, records[0].Secret, 20)
	assert.Contains(t, out.String(), "Generated secret: "+records[0].Secret)
}

func TestAddRejectsEmptyField(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	feed(v, "")
	err := Add(ctx, v, io.Discard, AddOptions{Title: "Bank", Username: "bob"})

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "secret", verr.Field)
	assert.Empty(t, v.Session.Records())
}

func TestEditKeepsUnchangedFields(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	feed(v, "hunter22")
	require.NoError(t, Add(ctx, v, io.Discard, AddOptions{Title: "GitHub", Username: "alice"}))
	oldID := v.Session.Records()[0].ID

	// Empty answer keeps the current title
	feed(v, "")
	var out bytes.Buffer
	require.NoError(t, Edit(ctx, v, &out, "GitHub", EditOptions{Username: "bob"}))
	assert.Contains(t, out.String(), `Updated "GitHub"`)

	records := v.Session.Records()
	require.Len(t, records, 1)
	assert.NotEqual(t, oldID, records[0].ID)
	assert.Equal(t, "GitHub", records[0].Title)
	assert.Equal(t, "bob", records[0].Username)
	assert.Equal(t, "hunter22", records[0].Secret)
}

func TestEditNewSecret(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	feed(v, "hunter22")
	require.NoError(t, Add(ctx, v, io.Discard, AddOptions{Title: "GitHub", Username: "alice"}))

	feed(v, "rotated!")
	require.NoError(t, Edit(ctx, v, io.Discard, "GitHub", EditOptions{Title: "GitHub", Username: "alice", NewSecret: true}))

	records := v.Session.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "rotated!", records[0].Secret)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	for _, title := range []string{"first", "second"} {
		feed(v, "secret-"+title)
		require.NoError(t, Add(ctx, v, io.Discard, AddOptions{Title: title, Username: "u"}))
	}

	var out bytes.Buffer
	require.NoError(t, Remove(ctx, v, &out, []string{"first"}))
	assert.Contains(t, out.String(), `Removed "first"`)

	records := v.Session.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "second", records[0].Title)

	err := Remove(ctx, v, io.Discard, []string{"first"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Error(t, Remove(ctx, v, io.Discard, nil))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	for _, title := range []string{"Mail", "mail", "Bank"} {
		feed(v, "s3cret")
		require.NoError(t, Add(ctx, v, io.Discard, AddOptions{Title: title, Username: "u"}))
	}

	_, err := resolve(v.Session, "MAIL")
	assert.ErrorContains(t, err, "matches 2 records")

	bank, err := resolve(v.Session, "bank")
	require.NoError(t, err)

	byPrefix, err := resolve(v.Session, bank.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, bank.ID, byPrefix.ID)

	_, err = resolve(v.Session, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)

	feed(v, "s3cret")
	require.NoError(t, Add(ctx, v, io.Discard, AddOptions{Title: "Work Mail", Username: "alice@corp"}))
	feed(v, "s3cret")
	require.NoError(t, Add(ctx, v, io.Discard, AddOptions{Title: "Bank", Username: "alice"}))

	var out bytes.Buffer
	require.NoError(t, Search(ctx, v, &out, "CORP"))
	assert.Contains(t, out.String(), "Work Mail")
	assert.NotContains(t, out.String(), "Bank")
	assert.Contains(t, out.String(), "1 of 2 records")

	out.Reset()
	require.NoError(t, Search(ctx, v, &out, "nothing"))
	assert.Contains(t, out.String(), `No records match "nothing"`)
}

func TestUnlockWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	v := setupVault(t)
	v.Session.Lock()

	t.Setenv(core.PassphraseEnv, "wrong horse")
	err := List(ctx, v, io.Discard)
	assert.ErrorIs(t, err, core.ErrWrongCredentials)
	assert.Equal(t, "wrong credentials", Describe(err))
	assert.Equal(t, core.Locked, v.Session.State())
}

func TestUnlockBeforeSetup(t *testing.T) {
	v := openVault(t, testConfig(t))
	t.Cleanup(v.Close)

	err := List(context.Background(), v, io.Discard)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.Contains(t, Describe(err), "vaultx setup")
}

func TestShell(t *testing.T) {
	v := setupVault(t)
	v.Session.Lock()

	feed(v,
		"help",
		"add -t 'My Bank' -u bob -g",
		"list",
		"show -r \"my bank\"",
		"lock",
		"search bank",
		"bogus",
		"exit",
		"list",
	)

	var out bytes.Buffer
	require.NoError(t, Shell(context.Background(), v, &out))

	text := out.String()
	assert.Contains(t, text, "Vault unlocked")
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, `Saved "My Bank"`)
	assert.Contains(t, text, "Generated secret:")
	assert.Contains(t, text, "Vault locked")
	assert.Contains(t, text, `unknown command "bogus"`)
	// saved, listed, shown, and found again after the lock
	assert.Equal(t, 4, strings.Count(text, "My Bank"))
	assert.Equal(t, core.Locked, v.Session.State())
}

func TestShellEOF(t *testing.T) {
	v := setupVault(t)
	feed(v, "list")

	var out bytes.Buffer
	require.NoError(t, Shell(context.Background(), v, &out))
	assert.Contains(t, out.String(), "No records")
}

func TestSplitArgs(t *testing.T) {
	cases := map[string][]string{
		"":                        nil,
		"  list  ":                {"list"},
		"add -t 'My Bank' -u bob": {"add", "-t", "My Bank", "-u", "bob"},
		`show "a 'b' c"`:          {"show", "a 'b' c"},
		`rm ''`:                   {"rm", ""},
	}
	for line, want := range cases {
		got, err := splitArgs(line)
		require.NoError(t, err, line)
		assert.Equal(t, want, got, line)
	}

	_, err := splitArgs(`show "open`)
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Generate(&out, 24, 3))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Len(t, line, 24)
	}

	assert.Error(t, Generate(io.Discard, 0, 1))
}

func TestStatusLocal(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	var out bytes.Buffer
	require.NoError(t, Status(ctx, cfg, discardLogger(), &out))
	assert.Contains(t, out.String(), "Backend: local")
	assert.Contains(t, out.String(), "No vault file found")

	v := openVault(t, cfg)
	require.NoError(t, Setup(ctx, v, io.Discard))
	feed(v, "hunter22")
	require.NoError(t, Add(ctx, v, io.Discard, AddOptions{Title: "GitHub", Username: "alice"}))
	v.Close()

	out.Reset()
	require.NoError(t, Status(ctx, cfg, discardLogger(), &out))
	assert.Contains(t, out.String(), "Records: 1")
	assert.NotContains(t, out.String(), "GitHub")
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	v := openVault(t, cfg)
	require.NoError(t, Setup(ctx, v, io.Discard))
	v.Close()

	var out bytes.Buffer
	require.NoError(t, Compact(cfg, &out))
	assert.Contains(t, out.String(), "Compacted:")

	cfg.Backend = config.BackendRemote
	assert.Error(t, Compact(cfg, io.Discard))
}

func TestRemoteOnlyCommands(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	assert.ErrorContains(t, Confirm(ctx, cfg, discardLogger(), io.Discard, "a@b.c", "tok"), "remote backend")
	assert.ErrorContains(t, Logout(ctx, cfg, discardLogger(), io.Discard), "remote backend")
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish"} {
		var out bytes.Buffer
		require.NoError(t, Completion(&out, shell))
		assert.Contains(t, out.String(), "vaultx")
		assert.Contains(t, out.String(), "generate")
	}
	assert.Error(t, Completion(io.Discard, "tcsh"))
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{core.ErrWrongCredentials, "wrong credentials"},
		{fmt.Errorf("verify: %w", core.ErrWrongCredentials), "wrong credentials"},
		{&core.ValidationError{Field: "title", Err: core.ErrEmptyField}, "title: field is required"},
		{fmt.Errorf("op: %w", storage.ErrAuthExpired), "session expired"},
		{identity.ErrRateLimited, "too many attempts"},
		{errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		assert.Contains(t, Describe(tc.err), tc.want)
	}
}
