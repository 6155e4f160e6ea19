// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package terminal

import (
	"strings"
)

// Completer completes slash commands at the start of the line and file
// paths after /include and /exclude. It implements
// readline.AutoCompleter.
type Completer struct {
	commands []string
	files    func() []string
}

// NewCompleter builds a completer over the command names (with their
// slash prefix) and a file lister consulted on every completion, so new
// files show up without a restart.
func NewCompleter(commands []string, files func() []string) *Completer {
	return &Completer{commands: commands, files: files}
}

// Do returns the candidate suffixes for the word at pos.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	if !strings.HasPrefix(text, "/") {
		return nil, 0
	}

	if !strings.ContainsAny(text, " \t") {
		return complete(c.commands, text, true)
	}

	fields := strings.Fields(text)
	if len(fields) == 0 || c.files == nil {
		return nil, 0
	}
	if fields[0] != "/include" && fields[0] != "/exclude" {
		return nil, 0
	}

	word := ""
	if r := text[len(text)-1]; r != ' ' && r != '\t' {
		word = fields[len(fields)-1]
	}
	return complete(c.files(), word, false)
}

// complete matches words against the typed prefix and returns the
// remainders, each with a trailing space so arguments chain.
func complete(words []string, prefix string, fold bool) ([][]rune, int) {
	var candidates [][]rune
	for _, w := range words {
		matched := strings.HasPrefix(w, prefix)
		if fold {
			matched = strings.HasPrefix(strings.ToLower(w), strings.ToLower(prefix))
		}
		if matched {
			candidates = append(candidates, []rune(w[len(prefix):]+" "))
		}
	}
	return candidates, len([]rune(prefix))
}
