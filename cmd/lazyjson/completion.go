// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lazyjson/internal/errors"
	"github.com/kraklabs/lazyjson/pkg/storage"
)

// completionData feeds the shell templates. Hashmap names are completed
// for the commands that take one.
type completionData struct {
	Commands    string
	GlobalFlags string
	SyncFlags   string
	Hashmaps    string
}

const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for lazyjson
# Installation:
#   source <(lazyjson completion bash)

_lazyjson_completion() {
    local cur cmd i
    cur="${COMP_WORDS[COMP_CWORD]}"

    # Find the command word, skipping global flags.
    cmd=""
    for ((i=1; i<COMP_CWORD; i++)); do
        if [[ ${COMP_WORDS[i]} != -* ]]; then
            cmd="${COMP_WORDS[i]}"
            break
        fi
    done

    if [[ -z ${cmd} ]]; then
        if [[ ${cur} == -* ]]; then
            COMPREPLY=( $(compgen -W "{{.GlobalFlags}}" -- ${cur}) )
        else
            COMPREPLY=( $(compgen -W "{{.Commands}}" -- ${cur}) )
        fi
        return 0
    fi

    case "${cmd}" in
        sync|cache)
            COMPREPLY=( $(compgen -W "{{.SyncFlags}}" -- ${cur}) )
            if [[ ${COMP_WORDS[COMP_CWORD-1]} == --hashmap ]]; then
                COMPREPLY=( $(compgen -W "{{.Hashmaps}}" -- ${cur}) )
            fi
            ;;
        keys|hash|rm)
            if [[ ${COMP_WORDS[COMP_CWORD-1]} == ${cmd} ]]; then
                COMPREPLY=( $(compgen -W "{{.Hashmaps}}" -- ${cur}) )
            fi
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            ;;
    esac
}

complete -F _lazyjson_completion lazyjson
`

const zshCompletionTemplate = `#compdef lazyjson

# Zsh completion script for lazyjson
# Installation:
#   lazyjson completion zsh > "${fpath[1]}/_lazyjson"

_lazyjson() {
    local -a commands hashmaps
    commands=({{.Commands}})
    hashmaps=({{.Hashmaps}})

    _arguments -C \
        '--config[Path to config file]:config file:_files -g "*.yaml"' \
        '--debug[Enable debug logging]' \
        '--no-color[Disable colored output]' \
        '--json[Output as JSON]' \
        '(-q --quiet)'{-q,--quiet}'[Only print errors and results]' \
        '--metrics-addr[HTTP listen address for Prometheus metrics]:address:' \
        '--version[Show version and exit]' \
        '1:command:(${commands})' \
        '*::arg:->args'

    case $state in
        args)
            case $words[1] in
                sync|cache)
                    _arguments \
                        '--batch-size[Keys copied per round trip]:size:' \
                        '--dry-run[Report what would change without writing]' \
                        '*--hashmap[Only sync these hashmaps]:hashmap:(${hashmaps})' \
                        '--wait[How long to wait for another running sync]:duration:'
                    ;;
                keys|hash|rm)
                    _arguments '1:hashmap:(${hashmaps})'
                    ;;
                completion)
                    _arguments '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_lazyjson "$@"
`

const fishCompletionTemplate = `# Fish completion script for lazyjson
# Installation:
#   lazyjson completion fish > ~/.config/fish/completions/lazyjson.fish

complete -c lazyjson -f -n "__fish_use_subcommand" -a "{{.Commands}}"
complete -c lazyjson -l config -d "Path to config file" -r
complete -c lazyjson -l debug -d "Enable debug logging"
complete -c lazyjson -l no-color -d "Disable colored output"
complete -c lazyjson -l json -d "Output as JSON"
complete -c lazyjson -s q -l quiet -d "Only print errors and results"
complete -c lazyjson -l metrics-addr -d "HTTP listen address for Prometheus metrics" -r
complete -c lazyjson -l version -d "Show version and exit"
complete -c lazyjson -f -n "__fish_seen_subcommand_from sync cache" -l batch-size -d "Keys copied per round trip" -r
complete -c lazyjson -f -n "__fish_seen_subcommand_from sync cache" -l dry-run -d "Report what would change without writing"
complete -c lazyjson -f -n "__fish_seen_subcommand_from sync cache" -l hashmap -d "Only sync these hashmaps" -a "{{.Hashmaps}}"
complete -c lazyjson -f -n "__fish_seen_subcommand_from sync cache" -l wait -d "How long to wait for another running sync" -r
complete -c lazyjson -f -n "__fish_seen_subcommand_from keys hash rm" -a "{{.Hashmaps}}"
complete -c lazyjson -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`

var completionTemplates = map[string]*template.Template{
	"bash": template.Must(template.New("bash").Parse(bashCompletionTemplate)),
	"zsh":  template.Must(template.New("zsh").Parse(zshCompletionTemplate)),
	"fish": template.Must(template.New("fish").Parse(fishCompletionTemplate)),
}

func newCompletionData() completionData {
	hs := make([]string, 0, len(storage.AllHashmaps()))
	for _, h := range storage.AllHashmaps() {
		hs = append(hs, h.String())
	}
	return completionData{
		Commands:    strings.Join(commandOrder, " "),
		GlobalFlags: "--config --debug --no-color --json -q --quiet --metrics-addr --version",
		SyncFlags:   "--batch-size --dry-run --hashmap --wait",
		Hashmaps:    strings.Join(hs, " "),
	}
}

// runCompletion executes 'completion <shell>', printing a completion
// script for bash, zsh or fish.
//
//	source <(lazyjson completion bash)
//	lazyjson completion fish | source
func runCompletion(_ context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("completion", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: lazyjson completion <shell>

Generates a shell completion script. Supported shells: bash, zsh, fish.

Examples:
  source <(lazyjson completion bash)
  lazyjson completion zsh > "${fpath[1]}/_lazyjson"
  lazyjson completion fish > ~/.config/fish/completions/lazyjson.fish
`)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'lazyjson completion bash', 'lazyjson completion zsh', or 'lazyjson completion fish'",
		)
	}
	tmpl, ok := completionTemplates[fs.Arg(0)]
	if !ok {
		return errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("Shell '%s' is not supported. Valid options: bash, zsh, fish", fs.Arg(0)),
			"Run 'lazyjson completion bash', 'lazyjson completion zsh', or 'lazyjson completion fish'",
		)
	}
	return tmpl.Execute(app.Stdout, newCompletionData())
}
