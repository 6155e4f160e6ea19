// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package display

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlight returns source with ANSI syntax highlighting for path's
// language. Unknown file types and tokenizer failures return the source
// unchanged.
func Highlight(path, source string) string {
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return source
	}
	lexer = chroma.Coalesce(lexer)
	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return source
	}
	var b strings.Builder
	if err := formatter.Format(&b, style, iterator); err != nil {
		return source
	}
	return b.String()
}

// HighlightLines highlights lines as one block and splits the result back
// per line, so callers can re-attach gutters. Lexers that append a missing
// trailing newline are accounted for; any other count drift falls back to
// the plain lines.
func HighlightLines(path string, lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	highlighted := Highlight(path, strings.Join(lines, "\n"))
	out := strings.Split(highlighted, "\n")
	if len(out) == len(lines)+1 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) != len(lines) {
		return lines
	}
	return out
}
