package cmd

import (
	"context"
	"fmt"
	"io"
)

// Setup creates a new vault and leaves it unlocked for the rest of the
// command
func Setup(ctx context.Context, v *Vault, w io.Writer) error {
	result, err := v.Setup(ctx)
	if err != nil {
		return err
	}

	if result.PendingConfirmation {
		fmt.Fprintln(w, "Account created. Confirm your email address before unlocking.")
		fmt.Fprintln(w, "With a development server, run 'vaultx confirm <email> <token>'.")
		return nil
	}

	if v.client != nil {
		fmt.Fprintf(w, "Vault created at %s\n", v.client.URL())
	} else {
		fmt.Fprintf(w, "Vault created at %s\n", v.Config.Local.Path)
	}
	if result.Report.Total > 0 {
		warnDropped(w, result.Report)
		renderFooter(w, result.Report)
	}
	return nil
}
