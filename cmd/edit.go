package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/illarion/vaultx/internal/core"
	"github.com/illarion/vaultx/internal/crypto"
)

// EditOptions select what edit changes. Unset fields are prompted for
// with the current value as default.
type EditOptions struct {
	Title     string
	Username  string
	NewSecret bool
	Generate  bool
	Length    int
}

// Edit replaces a record with new contents. The record gets a new id.
func Edit(ctx context.Context, v *Vault, w io.Writer, ref string, opts EditOptions) error {
	if v.Session.State() != core.Unlocked {
		if _, err := v.Unlock(ctx); err != nil {
			return err
		}
	}

	current, err := resolve(v.Session, ref)
	if err != nil {
		return err
	}

	title := opts.Title
	if title == "" {
		if title, err = v.PromptDefault("Title: ", current.Title); err != nil {
			return err
		}
	}
	username := opts.Username
	if username == "" {
		if username, err = v.PromptDefault("Username: ", current.Username); err != nil {
			return err
		}
	}

	secret := current.Secret
	switch {
	case opts.Generate:
		if secret, err = crypto.GeneratePassword(opts.Length); err != nil {
			return err
		}
	case opts.NewSecret:
		if secret, err = v.ReadSecret("New secret: "); err != nil {
			return err
		}
	}

	id, err := v.Session.Replace(ctx, current.ID, title, username, secret)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Updated %q (%s)\n", title, id)
	if opts.Generate {
		fmt.Fprintf(w, "Generated secret: %s\n", secret)
	}
	return nil
}
