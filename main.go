package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/illarion/vaultx/cmd"
	"github.com/illarion/vaultx/internal/config"
	"github.com/illarion/vaultx/internal/crypto"
)

// globals are accepted by every command
type globals struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		runSetup(ctx, os.Args[2:])
	case "list", "ls":
		runList(ctx, os.Args[2:])
	case "show":
		runShow(ctx, os.Args[2:])
	case "add":
		runAdd(ctx, os.Args[2:])
	case "edit":
		runEdit(ctx, os.Args[2:])
	case "rm":
		runRm(ctx, os.Args[2:])
	case "search":
		runSearch(ctx, os.Args[2:])
	case "generate":
		runGenerate(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "confirm":
		runConfirm(ctx, os.Args[2:])
	case "logout":
		runLogout(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "shell":
		runShell(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func newFlagSet(name string, g *globals) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.StringVar(&g.configPath, "config", "", "Config file (default ~/.vaultx/config.yaml)")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "Log debug output to stderr")
	return fs
}

func parse(fs *pflag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// load reads configuration and installs the logger
func load(g globals) (*config.Config, *slog.Logger) {
	log := cmd.NewLogger(g.verbose)
	slog.SetDefault(log)

	cfg, err := config.Load(g.configPath)
	if err != nil {
		cmd.HandleError(err)
	}
	log.Debug("configuration loaded", "backend", cfg.Backend, "path", cfg.Path())
	return cfg, log
}

// withVault opens the configured vault, runs fn and locks the vault
// again before reporting fn's error
func withVault(g globals, fn func(v *cmd.Vault) error) {
	cfg, log := load(g)

	v, err := cmd.OpenVault(cfg, log)
	if err != nil {
		cmd.HandleError(err)
	}
	err = fn(v)
	v.Close()
	if err != nil {
		cmd.HandleError(err)
	}
}

func runSetup(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("setup", &g)
	parse(fs, args)

	withVault(g, func(v *cmd.Vault) error {
		return cmd.Setup(ctx, v, os.Stdout)
	})
}

func runList(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("list", &g)
	parse(fs, args)

	withVault(g, func(v *cmd.Vault) error {
		return cmd.List(ctx, v, os.Stdout)
	})
}

func runShow(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("show", &g)
	reveal := fs.BoolP("reveal", "r", false, "Print the secret instead of a mask")
	parse(fs, args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: vaultx show [-r] <id|title>")
		os.Exit(1)
	}

	withVault(g, func(v *cmd.Vault) error {
		return cmd.Show(ctx, v, os.Stdout, fs.Arg(0), *reveal)
	})
}

func runAdd(ctx context.Context, args []string) {
	var g globals
	var opts cmd.AddOptions
	fs := newFlagSet("add", &g)
	fs.StringVarP(&opts.Title, "title", "t", "", "Record title")
	fs.StringVarP(&opts.Username, "username", "u", "", "Username")
	fs.BoolVarP(&opts.Generate, "generate", "g", false, "Generate a random secret")
	fs.IntVarP(&opts.Length, "length", "l", crypto.DefaultPasswordLength, "Generated secret length")
	parse(fs, args)

	withVault(g, func(v *cmd.Vault) error {
		return cmd.Add(ctx, v, os.Stdout, opts)
	})
}

func runEdit(ctx context.Context, args []string) {
	var g globals
	var opts cmd.EditOptions
	fs := newFlagSet("edit", &g)
	fs.StringVarP(&opts.Title, "title", "t", "", "New title")
	fs.StringVarP(&opts.Username, "username", "u", "", "New username")
	fs.BoolVarP(&opts.NewSecret, "secret", "s", false, "Prompt for a new secret")
	fs.BoolVarP(&opts.Generate, "generate", "g", false, "Generate a new random secret")
	fs.IntVarP(&opts.Length, "length", "l", crypto.DefaultPasswordLength, "Generated secret length")
	parse(fs, args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: vaultx edit [flags] <id|title>")
		os.Exit(1)
	}

	withVault(g, func(v *cmd.Vault) error {
		return cmd.Edit(ctx, v, os.Stdout, fs.Arg(0), opts)
	})
}

func runRm(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("rm", &g)
	parse(fs, args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: vaultx rm <id|title> [...]")
		os.Exit(1)
	}

	withVault(g, func(v *cmd.Vault) error {
		return cmd.Remove(ctx, v, os.Stdout, fs.Args())
	})
}

func runSearch(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("search", &g)
	parse(fs, args)

	withVault(g, func(v *cmd.Vault) error {
		return cmd.Search(ctx, v, os.Stdout, strings.Join(fs.Args(), " "))
	})
}

func runGenerate(_ context.Context, args []string) {
	var g globals
	fs := newFlagSet("generate", &g)
	length := fs.IntP("length", "l", crypto.DefaultPasswordLength, "Password length")
	count := fs.IntP("count", "n", 1, "Number of passwords")
	parse(fs, args)

	if err := cmd.Generate(os.Stdout, *length, *count); err != nil {
		cmd.HandleError(err)
	}
}

func runStatus(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("status", &g)
	parse(fs, args)

	cfg, log := load(g)
	if err := cmd.Status(ctx, cfg, log, os.Stdout); err != nil {
		cmd.HandleError(err)
	}
}

func runConfirm(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("confirm", &g)
	parse(fs, args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: vaultx confirm <email> <token>")
		os.Exit(1)
	}

	cfg, log := load(g)
	if err := cmd.Confirm(ctx, cfg, log, os.Stdout, fs.Arg(0), fs.Arg(1)); err != nil {
		cmd.HandleError(err)
	}
}

func runLogout(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("logout", &g)
	parse(fs, args)

	cfg, log := load(g)
	if err := cmd.Logout(ctx, cfg, log, os.Stdout); err != nil {
		cmd.HandleError(err)
	}
}

func runCompact(_ context.Context, args []string) {
	var g globals
	fs := newFlagSet("compact", &g)
	parse(fs, args)

	cfg, _ := load(g)
	if err := cmd.Compact(cfg, os.Stdout); err != nil {
		cmd.HandleError(err)
	}
}

func runShell(ctx context.Context, args []string) {
	var g globals
	fs := newFlagSet("shell", &g)
	parse(fs, args)

	withVault(g, func(v *cmd.Vault) error {
		return cmd.Shell(ctx, v, os.Stdout)
	})
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vaultx completion <bash|zsh|fish>")
		os.Exit(1)
	}
	if err := cmd.Completion(os.Stdout, args[0]); err != nil {
		cmd.HandleError(err)
	}
}

func printUsage() {
	fmt.Println("vaultx - Encrypted credential vault, local or hosted")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vaultx <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  setup       Create a new vault")
	fmt.Println("  list, ls    List records")
	fmt.Println("  show        Show a record")
	fmt.Println("  add         Add a record")
	fmt.Println("  edit        Edit a record")
	fmt.Println("  rm          Remove records")
	fmt.Println("  search      Find records by title or username")
	fmt.Println("  generate    Print a random password")
	fmt.Println("  status      Show backend and vault status")
	fmt.Println("  confirm     Confirm a hosted account")
	fmt.Println("  logout      Forget the stored hosted session")
	fmt.Println("  compact     Compact the local vault file")
	fmt.Println("  shell       Keep the vault open for several commands")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Global flags:")
	fmt.Println("  --config <file>  Config file (default ~/.vaultx/config.yaml)")
	fmt.Println("  -v, --verbose    Log debug output to stderr")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  vaultx setup                    # Create a vault")
	fmt.Println("  vaultx add -t GitHub -u alice   # Add a record, prompting for the secret")
	fmt.Println("  vaultx add -t Bank -g           # Add a record with a generated secret")
	fmt.Println("  vaultx show -r GitHub           # Print a record with its secret")
	fmt.Println()
	fmt.Println("Use 'vaultx help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "setup":
		fmt.Println("vaultx setup")
		fmt.Println()
		fmt.Println("Creates a new vault for the configured backend.")
		fmt.Println("Prompts for a passphrase twice; it must be at least 6 characters.")
		fmt.Println("The passphrase is not stored anywhere - you must remember it.")
		fmt.Println("With the remote backend an account is created for the email address;")
		fmt.Println("if the provider requires confirmation the vault stays locked until then.")
		fmt.Println()
		fmt.Println("Set VAULTX_PASSPHRASE to run without prompts.")
	case "list", "ls":
		fmt.Println("vaultx list")
		fmt.Println()
		fmt.Println("Unlocks the vault and lists every record that opens with the passphrase.")
		fmt.Println("Records that do not open are counted and reported, never shown.")
	case "show":
		fmt.Println("vaultx show [-r|--reveal] <id|title>")
		fmt.Println()
		fmt.Println("Shows one record. The record is found by id, id prefix or title.")
		fmt.Println("The secret is masked unless --reveal is given.")
	case "add":
		fmt.Println("vaultx add [-t title] [-u username] [-g [-l length]]")
		fmt.Println()
		fmt.Println("Seals a new record. Missing fields are prompted for;")
		fmt.Println("the secret is read without echo.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -t, --title       Record title")
		fmt.Println("  -u, --username    Username")
		fmt.Println("  -g, --generate    Generate a random secret")
		fmt.Println("  -l, --length      Generated secret length (default 16)")
	case "edit":
		fmt.Println("vaultx edit [-t title] [-u username] [-s|-g] <id|title>")
		fmt.Println()
		fmt.Println("Replaces a record. The new version is saved before the old one is")
		fmt.Println("removed, so the record gets a new id.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -t, --title       New title")
		fmt.Println("  -u, --username    New username")
		fmt.Println("  -s, --secret      Prompt for a new secret")
		fmt.Println("  -g, --generate    Generate a new random secret")
		fmt.Println("  -l, --length      Generated secret length (default 16)")
	case "rm":
		fmt.Println("vaultx rm <id|title> [...]")
		fmt.Println()
		fmt.Println("Removes records from the vault.")
	case "search":
		fmt.Println("vaultx search <query>")
		fmt.Println()
		fmt.Println("Lists records whose title or username contains the query,")
		fmt.Println("ignoring case.")
	case "generate":
		fmt.Println("vaultx generate [-l length] [-n count]")
		fmt.Println()
		fmt.Println("Prints random passwords from letters, digits and !@#$%^&*()_+.")
		fmt.Println("Does not open the vault.")
	case "status":
		fmt.Println("vaultx status")
		fmt.Println()
		fmt.Println("Shows the configured backend, the vault file or server,")
		fmt.Println("and the record count. Does not require a passphrase.")
	case "confirm":
		fmt.Println("vaultx confirm <email> <token>")
		fmt.Println()
		fmt.Println("Confirms a hosted account with the token from the confirmation message.")
		fmt.Println("Remote backend only.")
	case "logout":
		fmt.Println("vaultx logout")
		fmt.Println()
		fmt.Println("Signs out any stored hosted session and removes it from the OS keyring.")
		fmt.Println("Remote backend only.")
	case "compact":
		fmt.Println("vaultx compact")
		fmt.Println()
		fmt.Println("Rewrites the local vault file to reclaim space left by removed records.")
		fmt.Println("Does not require a passphrase.")
	case "shell":
		fmt.Println("vaultx shell")
		fmt.Println()
		fmt.Println("Unlocks once and reads commands from stdin until 'exit'.")
		fmt.Println("The vault is locked on exit, on Ctrl-D and when the hosted session expires.")
	case "completion":
		fmt.Println("vaultx completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(vaultx completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(vaultx completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  vaultx completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
