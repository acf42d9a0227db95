package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/illarion/vaultx/internal/config"
	"github.com/illarion/vaultx/internal/storage"
)

// Status describes the configured backend without unlocking anything
func Status(ctx context.Context, cfg *config.Config, log *slog.Logger, w io.Writer) error {
	if path := cfg.Path(); path != "" {
		fmt.Fprintf(w, "Config:  %s\n", path)
	} else {
		fmt.Fprintln(w, "Config:  (defaults)")
	}
	fmt.Fprintf(w, "Backend: %s\n", cfg.Backend)
	fmt.Fprintf(w, "Scheme:  %s\n", cfg.Crypto.Scheme)

	if cfg.Backend == config.BackendRemote {
		return remoteStatus(cfg, log, w)
	}
	return localStatus(ctx, cfg, w)
}

func localStatus(ctx context.Context, cfg *config.Config, w io.Writer) error {
	fmt.Fprintf(w, "Vault:   %s\n", cfg.Local.Path)

	info, err := os.Stat(cfg.Local.Path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(w, "\nNo vault file found")
		fmt.Fprintln(w, "Run 'vaultx setup' to create one")
		return nil
	}
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Local.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	initialized, err := store.HasFingerprint(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		fmt.Fprintln(w, "\nVault file exists but was never set up")
		fmt.Fprintln(w, "Run 'vaultx setup' to create the vault")
		return nil
	}

	// Titles and ids are stored in the clear; counting needs no key.
	records, err := store.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Size:    %s\n", formatSize(info.Size()))
	fmt.Fprintf(w, "Records: %d\n", len(records))

	modified, err := store.Modified()
	if err != nil {
		return err
	}
	if !modified.IsZero() {
		fmt.Fprintf(w, "Changed: %s\n", modified.Local().Format(time.RFC3339))
	}
	return nil
}

func remoteStatus(cfg *config.Config, log *slog.Logger, w io.Writer) error {
	fmt.Fprintf(w, "URL:     %s\n", cfg.Remote.URL)
	if cfg.Remote.Email != "" {
		fmt.Fprintf(w, "Email:   %s\n", cfg.Remote.Email)
	}

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	if client.HasPersisted() {
		fmt.Fprintln(w, "Session: stored in OS keyring (run 'vaultx logout' to remove)")
	} else {
		fmt.Fprintln(w, "Session: none")
	}
	return nil
}
