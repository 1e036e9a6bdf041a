// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/kraklabs/idxsync/internal/errors"
)

const bashCompletion = `_idxsync_completions() {
  local cur prev
  cur="${COMP_WORDS[COMP_CWORD]}"
  if [ "$COMP_CWORD" -eq 1 ]; then
    COMPREPLY=( $(compgen -W "init sync watch status serve reset completion" -- "$cur") )
  fi
}
complete -F _idxsync_completions idxsync
`

const zshCompletion = `#compdef idxsync
_idxsync() {
  _arguments '1: :(init sync watch status serve reset completion)'
}
_idxsync
`

const fishCompletion = `complete -c idxsync -n "__fish_use_subcommand" -a "init" -d "Create .idxsync/project.yaml configuration"
complete -c idxsync -n "__fish_use_subcommand" -a "sync" -d "Run one sync cycle against the server"
complete -c idxsync -n "__fish_use_subcommand" -a "watch" -d "Watch the repository and sync on change"
complete -c idxsync -n "__fish_use_subcommand" -a "status" -d "Show project sync status"
complete -c idxsync -n "__fish_use_subcommand" -a "serve" -d "Run a local reconciler server"
complete -c idxsync -n "__fish_use_subcommand" -a "reset" -d "Delete local project state"
complete -c idxsync -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"
`

// runCompletion executes the 'completion' CLI command, printing a shell
// completion script for the requested shell to stdout.
func runCompletion(args []string, globals GlobalFlags) {
	if len(args) != 1 {
		errors.FatalError(errors.NewInputError(
			"Shell name required",
			"completion requires exactly one argument: bash, zsh, or fish",
			"Run 'idxsync completion bash' (or zsh, fish)",
		), globals.JSON)
	}

	switch args[0] {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unsupported shell: %s (expected bash, zsh, or fish)\n", args[0])
		os.Exit(1)
	}
}
