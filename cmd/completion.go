package cmd

import (
	"fmt"
	"io"
)

// Completion writes the completion script for shell
func Completion(w io.Writer, shell string) error {
	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletion)
	case "zsh":
		fmt.Fprint(w, zshCompletion)
	case "fish":
		fmt.Fprint(w, fishCompletion)
	default:
		return fmt.Errorf("unknown shell: %s (supported: bash, zsh, fish)", shell)
	}
	return nil
}

const bashCompletion = `_vaultx() {
    local cur prev words cword
    _init_completion || return

    local commands="setup list show add edit rm search generate status confirm logout compact shell completion help"
    local global="--config --verbose"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    if [[ "$prev" == "--config" ]]; then
        _filedir yaml
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        show)
            COMPREPLY=($(compgen -W "$global -r --reveal" -- "$cur"))
            ;;
        add)
            COMPREPLY=($(compgen -W "$global -t --title -u --username -g --generate -l --length" -- "$cur"))
            ;;
        edit)
            COMPREPLY=($(compgen -W "$global -t --title -u --username -s --secret -g --generate -l --length" -- "$cur"))
            ;;
        generate)
            COMPREPLY=($(compgen -W "$global -l --length -n --count" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
        *)
            COMPREPLY=($(compgen -W "$global" -- "$cur"))
            ;;
    esac
}

complete -F _vaultx vaultx
`

const zshCompletion = `#compdef vaultx

_vaultx() {
    local -a commands
    commands=(
        'setup:Create a new vault'
        'list:List records'
        'show:Show a record'
        'add:Add a record'
        'edit:Edit a record'
        'rm:Remove records'
        'search:Find records by title or username'
        'generate:Print a random password'
        'status:Show backend and vault status'
        'confirm:Confirm a hosted account'
        'logout:Forget the stored hosted session'
        'compact:Compact the local vault file'
        'shell:Keep the vault open for several commands'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    local -a global
    global=(
        '--config[Config file]:file:_files -g "*.yaml"'
        '--verbose[Log debug output]'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'vaultx commands' commands
            ;;
        args)
            case "${words[2]}" in
                show)
                    _arguments $global \
                        {-r,--reveal}'[Show the secret]'
                    ;;
                add)
                    _arguments $global \
                        {-t,--title}'[Record title]:title:' \
                        {-u,--username}'[Username]:username:' \
                        {-g,--generate}'[Generate the secret]' \
                        {-l,--length}'[Generated secret length]:length:'
                    ;;
                edit)
                    _arguments $global \
                        {-t,--title}'[New title]:title:' \
                        {-u,--username}'[New username]:username:' \
                        {-s,--secret}'[Prompt for a new secret]' \
                        {-g,--generate}'[Generate a new secret]' \
                        {-l,--length}'[Generated secret length]:length:'
                    ;;
                generate)
                    _arguments $global \
                        {-l,--length}'[Password length]:length:' \
                        {-n,--count}'[Number of passwords]:count:'
                    ;;
                help)
                    _describe -t commands 'vaultx commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
                *)
                    _arguments $global
                    ;;
            esac
            ;;
    esac
}

_vaultx "$@"
`

const fishCompletion = `# vaultx fish completions

set -l commands setup list show add edit rm search generate status confirm logout compact shell completion help

complete -c vaultx -f

# Commands
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a setup -d 'Create a new vault'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a list -d 'List records'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a show -d 'Show a record'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a add -d 'Add a record'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a edit -d 'Edit a record'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove records'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a search -d 'Find records'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a generate -d 'Print a random password'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault status'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a confirm -d 'Confirm a hosted account'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a logout -d 'Forget the stored session'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact the vault file'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a shell -d 'Interactive session'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c vaultx -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# Global flags
complete -c vaultx -l config -r -F -d 'Config file'
complete -c vaultx -l verbose -d 'Log debug output'

# show
complete -c vaultx -n "__fish_seen_subcommand_from show" -s r -l reveal -d 'Show the secret'

# add and edit
complete -c vaultx -n "__fish_seen_subcommand_from add edit" -s t -l title -r -d 'Title'
complete -c vaultx -n "__fish_seen_subcommand_from add edit" -s u -l username -r -d 'Username'
complete -c vaultx -n "__fish_seen_subcommand_from add edit" -s g -l generate -d 'Generate the secret'
complete -c vaultx -n "__fish_seen_subcommand_from add edit generate" -s l -l length -r -d 'Secret length'
complete -c vaultx -n "__fish_seen_subcommand_from edit" -s s -l secret -d 'Prompt for a new secret'

# generate
complete -c vaultx -n "__fish_seen_subcommand_from generate" -s n -l count -r -d 'Number of passwords'

# help completions
complete -c vaultx -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c vaultx -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
