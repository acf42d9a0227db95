package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/illarion/vaultx/internal/core"
	"github.com/illarion/vaultx/internal/crypto"
)

// AddOptions are the add command's inputs. Empty fields are prompted for.
type AddOptions struct {
	Title    string
	Username string
	Generate bool
	Length   int
}

// Add seals a new record
func Add(ctx context.Context, v *Vault, w io.Writer, opts AddOptions) error {
	if v.Session.State() != core.Unlocked {
		if _, err := v.Unlock(ctx); err != nil {
			return err
		}
	}

	var err error
	title := opts.Title
	if title == "" {
		if title, err = v.Prompt("Title: "); err != nil {
			return err
		}
	}
	username := opts.Username
	if username == "" {
		if username, err = v.Prompt("Username: "); err != nil {
			return err
		}
	}

	var secret string
	if opts.Generate {
		if secret, err = crypto.GeneratePassword(opts.Length); err != nil {
			return err
		}
	} else if secret, err = v.ReadSecret("Secret: "); err != nil {
		return err
	}

	id, err := v.Session.Save(ctx, title, username, secret)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Saved %q (%s)\n", title, id)
	if opts.Generate {
		fmt.Fprintf(w, "Generated secret: %s\n", secret)
	}
	return nil
}
