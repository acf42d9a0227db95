package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/illarion/vaultx/internal/core"
)

// Remove deletes records by id, id prefix or title
func Remove(ctx context.Context, v *Vault, w io.Writer, refs []string) error {
	if len(refs) == 0 {
		return errors.New("rm requires at least one record id or title")
	}

	if v.Session.State() != core.Unlocked {
		if _, err := v.Unlock(ctx); err != nil {
			return err
		}
	}

	for _, ref := range refs {
		r, err := resolve(v.Session, ref)
		if err != nil {
			return err
		}
		if err := v.Session.Remove(ctx, r.ID); err != nil {
			return err
		}
		fmt.Fprintf(w, "Removed %q\n", r.Title)
	}
	return nil
}
