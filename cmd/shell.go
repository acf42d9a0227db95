package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/illarion/vaultx/internal/core"
	"github.com/illarion/vaultx/internal/crypto"
)

const shellHelp = `Commands:
  list                         List records
  search <query>               Find records by title or username
  show [-r] <id|title>         Show a record (-r reveals the secret)
  add [-g] [-t title] [-u username]
                               Add a record (-g generates the secret)
  edit [-s|-g] <id|title>      Edit a record (-s new secret, -g generate one)
  rm <id|title>...             Remove records
  generate [-l length]         Print a random password
  lock                         Lock the vault
  unlock                       Unlock the vault
  help                         Show this help
  exit                         Lock and leave`

// Shell keeps one session open across commands read from stdin. The vault
// is locked on exit and whenever the backend reports an expired session.
func Shell(ctx context.Context, v *Vault, w io.Writer) error {
	if v.Session.State() != core.Unlocked {
		if _, err := v.Unlock(ctx); err != nil {
			return err
		}
	}
	defer v.Session.Lock()
	fmt.Fprintln(w, "Vault unlocked. Type 'help' for commands.")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := v.Prompt(shellPrompt(v.Session.State()))
		if err != nil {
			// EOF ends the shell like exit does
			fmt.Fprintln(w)
			return nil
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintf(w, "Error: %s\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}
		if err := runShellCommand(ctx, v, w, args[0], args[1:]); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				continue
			}
			fmt.Fprintf(w, "Error: %s\n", Describe(err))
		}
	}
}

func shellPrompt(state core.State) string {
	if state == core.Unlocked {
		return "vaultx> "
	}
	return "vaultx (locked)> "
}

func runShellCommand(ctx context.Context, v *Vault, w io.Writer, name string, args []string) error {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(w)

	switch name {
	case "help", "?":
		fmt.Fprintln(w, shellHelp)
		return nil

	case "list", "ls":
		return List(ctx, v, w)

	case "search":
		return Search(ctx, v, w, strings.Join(args, " "))

	case "show":
		reveal := fs.BoolP("reveal", "r", false, "Show the secret")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: show [-r] <id|title>")
		}
		return Show(ctx, v, w, fs.Arg(0), *reveal)

	case "add":
		var opts AddOptions
		fs.StringVarP(&opts.Title, "title", "t", "", "Record title")
		fs.StringVarP(&opts.Username, "username", "u", "", "Username")
		fs.BoolVarP(&opts.Generate, "generate", "g", false, "Generate the secret")
		fs.IntVarP(&opts.Length, "length", "l", crypto.DefaultPasswordLength, "Generated secret length")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return Add(ctx, v, w, opts)

	case "edit":
		var opts EditOptions
		fs.StringVarP(&opts.Title, "title", "t", "", "New title")
		fs.StringVarP(&opts.Username, "username", "u", "", "New username")
		fs.BoolVarP(&opts.NewSecret, "secret", "s", false, "Prompt for a new secret")
		fs.BoolVarP(&opts.Generate, "generate", "g", false, "Generate a new secret")
		fs.IntVarP(&opts.Length, "length", "l", crypto.DefaultPasswordLength, "Generated secret length")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: edit [-s|-g] <id|title>")
		}
		return Edit(ctx, v, w, fs.Arg(0), opts)

	case "rm":
		return Remove(ctx, v, w, args)

	case "generate":
		length := fs.IntP("length", "l", crypto.DefaultPasswordLength, "Password length")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return Generate(w, *length, 1)

	case "lock":
		v.Session.Lock()
		fmt.Fprintln(w, "Vault locked")
		return nil

	case "unlock":
		if v.Session.State() == core.Unlocked {
			return core.ErrAlreadyUnlocked
		}
		report, err := v.Unlock(ctx)
		if err != nil {
			return err
		}
		renderFooter(w, report)
		return nil

	default:
		return fmt.Errorf("unknown command %q, type 'help'", name)
	}
}

// splitArgs splits a shell line on whitespace, keeping single- or
// double-quoted runs together
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
