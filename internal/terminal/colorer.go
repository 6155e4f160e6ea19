// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package terminal

import (
	"strings"

	"github.com/fatih/color"

	"github.com/sycomix/mentat/pkg/types"
)

var (
	markupColor  = color.New(color.FgCyan)
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
)

var changeDelimiter = strings.Repeat("=", 60)

// StreamColorer feeds streamed response tokens to a Printer, coloring
// patch markup as it is recognized. Conversation text passes through as
// it arrives; a line that could still turn into markup is held until its
// newline decides it, and lines inside a patch block are always colored
// whole. One colorer serves one response.
type StreamColorer struct {
	printer *Printer
	format  types.PatchFormat

	partial     strings.Builder
	passthrough bool // rest of the current line is conversation text
	inBlock     bool // between @@start and @@end
	inCode      bool // after @@code
	inDiff      bool // inside a ---/+++ change
}

// NewStreamColorer wires a colorer for the given patch format to p.
func NewStreamColorer(p *Printer, format types.PatchFormat) *StreamColorer {
	return &StreamColorer{printer: p, format: format}
}

// Print queues one streamed token.
func (sc *StreamColorer) Print(token string) {
	text := sc.partial.String() + token
	sc.partial.Reset()

	for {
		idx := strings.Index(text, "\n")
		if idx < 0 {
			break
		}
		line := text[:idx]
		text = text[idx+1:]
		if sc.passthrough {
			sc.printer.Add(line+"\n", nil)
			sc.passthrough = false
			continue
		}
		sc.emitLine(line)
	}

	if text == "" {
		return
	}
	if sc.passthrough {
		sc.printer.Add(text, nil)
		return
	}
	if sc.holdsPartial(text) {
		sc.partial.WriteString(text)
		return
	}
	sc.printer.Add(text, nil)
	sc.passthrough = true
}

// Finish flushes a trailing partial line and waits for the printer to
// drain. A line cut off by the end of the stream prints plain.
func (sc *StreamColorer) Finish() {
	if rest := sc.partial.String(); rest != "" {
		sc.partial.Reset()
		sc.printer.Add(rest, nil)
	}
	sc.printer.Finish()
}

// holdsPartial reports whether an incomplete line could still become
// patch markup once finished, and so must wait for its newline.
func (sc *StreamColorer) holdsPartial(line string) bool {
	if sc.inBlock || sc.inDiff {
		return true
	}
	var markers []string
	if sc.format == types.FormatUnifiedDiff {
		markers = []string{"---", "+++"}
	} else {
		markers = []string{"@@start"}
	}
	for _, marker := range markers {
		if strings.HasPrefix(line, marker) || strings.HasPrefix(marker, line) {
			return true
		}
	}
	return false
}

// emitLine colors one complete line according to the format's markup.
func (sc *StreamColorer) emitLine(line string) {
	if sc.format == types.FormatUnifiedDiff {
		sc.emitDiffLine(line)
		return
	}
	sc.emitBlockLine(line)
}

func (sc *StreamColorer) emitBlockLine(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case !sc.inBlock:
		if trimmed == "@@start" {
			sc.inBlock = true
			sc.printer.Add(line+"\n", markupColor)
			return
		}
		sc.printer.Add(line+"\n", nil)
	case trimmed == "@@end":
		sc.inBlock = false
		sc.inCode = false
		sc.printer.Add(line+"\n", markupColor)
	case sc.inCode:
		sc.printer.Add(line+"\n", addedColor)
	case trimmed == "@@code":
		sc.inCode = true
		sc.printer.Add(line+"\n", markupColor)
	default:
		// The JSON header between @@start and @@code.
		sc.printer.Add(line+"\n", markupColor)
	}
}

func (sc *StreamColorer) emitDiffLine(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case !sc.inDiff:
		if strings.HasPrefix(line, "---") {
			sc.inDiff = true
			sc.printer.Add(line+"\n", markupColor)
			return
		}
		sc.printer.Add(line+"\n", nil)
	case trimmed == "@@end":
		sc.inDiff = false
		sc.printer.Add(changeDelimiter+"\n", nil)
	case trimmed == "@@":
		sc.printer.Add(changeDelimiter+"\n", nil)
	case strings.HasPrefix(line, "+++"):
		sc.printer.Add(line+"\n", markupColor)
	case strings.HasPrefix(line, "+"):
		sc.printer.Add(line+"\n", addedColor)
	case strings.HasPrefix(line, "-"):
		sc.printer.Add(line+"\n", removedColor)
	default:
		sc.printer.Add(line+"\n", nil)
	}
}
