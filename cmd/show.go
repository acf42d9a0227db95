package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/illarion/vaultx/internal/core"
	"github.com/illarion/vaultx/internal/storage"
)

// Show prints one record. The secret is masked unless reveal is set.
func Show(ctx context.Context, v *Vault, w io.Writer, ref string, reveal bool) error {
	if v.Session.State() != core.Unlocked {
		if _, err := v.Unlock(ctx); err != nil {
			return err
		}
	}

	r, err := resolve(v.Session, ref)
	if err != nil {
		return err
	}

	secret := strings.Repeat("*", 8)
	if reveal {
		secret = r.Secret
	}

	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Title:   "), r.Title)
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Username:"), r.Username)
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Secret:  "), secret)
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Created: "), r.CreatedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("ID:      "), idStyle.Render(r.ID))
	return nil
}

// resolve finds a record by exact id, unique id prefix, or unique
// case-insensitive title
func resolve(s *core.Session, ref string) (core.Record, error) {
	if r, ok := s.Get(ref); ok {
		return r, nil
	}

	var matches []core.Record
	for _, r := range s.Records() {
		if strings.HasPrefix(r.ID, ref) || strings.EqualFold(r.Title, ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return core.Record{}, fmt.Errorf("%q: %w", ref, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return core.Record{}, fmt.Errorf("%q matches %d records, use the id", ref, len(matches))
	}
}
