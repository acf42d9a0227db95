package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/illarion/vaultx/internal/config"
)

// Confirm completes a pending sign-up with the token the provider sent.
// It does not sign in; the vault stays locked until the next unlock.
func Confirm(ctx context.Context, cfg *config.Config, log *slog.Logger, w io.Writer, email, token string) error {
	if err := requireRemote(cfg, "confirm"); err != nil {
		return err
	}

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	user, err := client.Verify(ctx, email, token)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Confirmed %s\n", user.Email)
	return nil
}

// Logout ends any stored hosted session and removes it from the OS
// keyring
func Logout(ctx context.Context, cfg *config.Config, log *slog.Logger, w io.Writer) error {
	if err := requireRemote(cfg, "logout"); err != nil {
		return err
	}

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	if !client.HasPersisted() {
		fmt.Fprintln(w, "No stored session")
		return nil
	}

	// An expired or unreadable entry is discarded by Restore itself.
	if _, err := client.Restore(ctx); err != nil {
		log.Debug("failed to restore session", "error", err)
	}
	if err := client.SignOut(ctx); err != nil {
		return err
	}

	fmt.Fprintln(w, "Signed out")
	return nil
}
