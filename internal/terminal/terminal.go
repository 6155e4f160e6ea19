// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package terminal implements the interactive client surface: readline
// input with history and completion, yes/no prompts, and a paced printer
// that colors patch markup inside streamed responses.
package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/sycomix/mentat/internal/config"
)

const defaultPrompt = ">>> "

// Options configure the terminal.
type Options struct {
	// Prompt defaults to ">>> ". With InputStyle "colored" it is printed
	// bold.
	Prompt     string
	InputStyle string

	// HistoryFile defaults to ~/.mentat/history.
	HistoryFile string

	Completer readline.AutoCompleter

	// Stdout overrides where prompts and output go, for tests.
	Stdout io.Writer
}

// Terminal owns the interactive input line. It also satisfies the file
// manager's Confirmer.
type Terminal struct {
	rl  *readline.Instance
	out io.Writer
}

// New opens the readline instance. Callers must Close it.
func New(opts Options) (*Terminal, error) {
	prompt := opts.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	if opts.InputStyle != "plain" {
		prompt = color.New(color.Bold).Sprint(prompt)
	}

	histFile := opts.HistoryFile
	if histFile == "" {
		if dir, err := config.UserDir(); err == nil {
			histFile = filepath.Join(dir, "history")
		}
	}
	if histFile != "" {
		// History is best effort; readline disables it when the file
		// cannot be opened.
		_ = os.MkdirAll(filepath.Dir(histFile), 0o755)
	}

	cfg := &readline.Config{
		Prompt:            prompt,
		HistoryFile:       histFile,
		AutoComplete:      opts.Completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	}
	if opts.Stdout != nil {
		cfg.Stdout = opts.Stdout
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening terminal: %w", err)
	}

	out := opts.Stdout
	if out == nil {
		out = rl.Stdout()
	}
	return &Terminal{rl: rl, out: out}, nil
}

// Close releases the readline instance.
func (t *Terminal) Close() error {
	return t.rl.Close()
}

// Out returns the writer session output should go to.
func (t *Terminal) Out() io.Writer {
	return t.out
}

// ReadLine reads one line of input. Ctrl-C with text on the line discards
// it and prompts again; Ctrl-C on an empty line, Ctrl-D, and the literal
// input "q" all end the session, reported as io.EOF.
func (t *Terminal) ReadLine() (string, error) {
	for {
		line, err := t.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if len(line) == 0 {
				return "", io.EOF
			}
			continue
		case errors.Is(err, io.EOF):
			return "", io.EOF
		case err != nil:
			return "", err
		}

		line = strings.TrimSpace(line)
		if line == "q" {
			return "", io.EOF
		}
		return line, nil
	}
}

// AskYesNo prompts until it gets y, n, or an empty line. Interrupting the
// prompt answers no.
func (t *Terminal) AskYesNo(defaultYes bool) bool {
	hint := "(y/N)"
	if defaultYes {
		hint = "(Y/n)"
	}
	for {
		fmt.Fprintln(t.out, hint)
		line, err := t.rl.Readline()
		if err != nil {
			return false
		}
		if answer, ok := parseYesNo(line, defaultYes); ok {
			return answer
		}
	}
}

// Confirm prints the question and asks for a yes/no answer.
func (t *Terminal) Confirm(prompt string, defaultYes bool) bool {
	if prompt != "" {
		fmt.Fprintln(t.out, prompt)
	}
	return t.AskYesNo(defaultYes)
}

// parseYesNo interprets one answer line. ok is false for anything other
// than y, n, or an empty line.
func parseYesNo(line string, defaultYes bool) (answer, ok bool) {
	switch content := strings.TrimSpace(line); content {
	case "y", "n", "":
		return content == "y" || (content != "n" && defaultYes), true
	default:
		return false, false
	}
}
