package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/illarion/vaultx/internal/config"
	"github.com/illarion/vaultx/internal/storage"
)

// Compact rewrites the local vault file so deleted records no longer
// linger in free pages
func Compact(cfg *config.Config, w io.Writer) error {
	if cfg.Backend != config.BackendLocal {
		return fmt.Errorf("'compact' needs the local backend (backend: %s)", cfg.Backend)
	}

	info, err := os.Stat(cfg.Local.Path)
	if err != nil {
		return err
	}
	sizeBefore := info.Size()

	store, err := storage.Open(cfg.Local.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Compact(); err != nil {
		return err
	}

	info, err = os.Stat(cfg.Local.Path)
	if err != nil {
		return err
	}
	sizeAfter := info.Size()

	fmt.Fprintf(w, "Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
	return nil
}
