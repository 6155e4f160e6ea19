// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package parsers turns model responses into per-file edits. Each supported
// patch dialect has a parser that extracts its patch blocks from a full
// response, anchors change groups against the current file content where the
// dialect calls for it, and emits FileEdits for the applying layers.
// Failures are per file: one bad block discards that file's whole edit and
// leaves every other file's edit intact.
package parsers

import (
	"embed"
	"fmt"
	"path/filepath"

	"github.com/sycomix/mentat/pkg/types"
)

//go:embed prompts/*.txt
var promptFS embed.FS

func readPrompt(name string) (string, error) {
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("reading prompt %s: %w", name, err)
	}
	return string(data), nil
}

// BufferSource supplies the current line buffer for a file, keyed by
// absolute path. ok is false when the file cannot be read.
type BufferSource interface {
	Lines(path string) (lines []string, ok bool)
}

// AnchorNotFoundError reports that a change group's context and removal
// lines do not appear verbatim in the target file.
type AnchorNotFoundError struct {
	File   string
	Search []string
}

func (e *AnchorNotFoundError) Error() string {
	return fmt.Sprintf("original lines not found in %s", e.File)
}

// MalformedHunkError reports a patch block the dialect cannot accept: a
// change line with an unrecognized leading marker, an unparseable header,
// or inconsistent file actions.
type MalformedHunkError struct {
	File   string
	Reason string
}

func (e *MalformedHunkError) Error() string {
	if e.File == "" {
		return "malformed patch block: " + e.Reason
	}
	return fmt.Sprintf("malformed patch block for %s: %s", e.File, e.Reason)
}

// ParseResult holds everything extracted from one model response.
type ParseResult struct {
	FileEdits []*types.FileEdit
	// Errors holds one recoverable error per discarded file edit, in the
	// order the failures were hit.
	Errors []error
	// Conversation is the response text outside patch blocks.
	Conversation string
}

// Parser parses one patch dialect.
type Parser interface {
	// Format returns the dialect tag this parser handles.
	Format() types.PatchFormat
	// SystemPrompt returns the format instructions sent to the model.
	SystemPrompt() (string, error)
	// ProvideLineNumbers reports whether code messages should number their
	// lines. Dialects that address edits by line number need them.
	ProvideLineNumbers() bool
	// ParseResponse extracts the dialect's patch blocks from a full model
	// response, parses each against the current file content, and merges
	// blocks targeting the same file into a single FileEdit.
	ParseResponse(response, gitRoot string, buffers BufferSource) *ParseResult
	// ParseBlock parses a single tagged patch block against the target
	// file's current lines.
	ParseBlock(block types.PatchBlock, buffer []string) (*types.FileEdit, error)
}

// ForFormat returns the parser for a format tag.
func ForFormat(format types.PatchFormat) (Parser, error) {
	switch format {
	case types.FormatBlock:
		return &BlockParser{}, nil
	case types.FormatUnifiedDiff:
		return &UnifiedDiffParser{}, nil
	default:
		return nil, fmt.Errorf("unknown patch format %q (valid formats: %q, %q)",
			format, types.FormatBlock, types.FormatUnifiedDiff)
	}
}

// absPath resolves a path from a patch against the repository root.
func absPath(gitRoot, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(gitRoot, path)
}

// editCollector merges parsed blocks into per-file edits. It canonicalizes
// renamed paths back to the original file, and once any block for a file
// fails it drops that file's whole edit and ignores later blocks for it.
type editCollector struct {
	parser   Parser
	buffers  BufferSource
	order    []string
	edits    map[string]*types.FileEdit
	poisoned map[string]bool
	renames  map[string]string // new path -> original path
	errs     []error
}

func newEditCollector(parser Parser, buffers BufferSource) *editCollector {
	return &editCollector{
		parser:   parser,
		buffers:  buffers,
		edits:    make(map[string]*types.FileEdit),
		poisoned: make(map[string]bool),
		renames:  make(map[string]string),
	}
}

func (c *editCollector) canonical(path string) string {
	if orig, ok := c.renames[path]; ok {
		return orig
	}
	return path
}

func (c *editCollector) add(block types.PatchBlock) {
	path := c.canonical(block.FilePath)
	if c.poisoned[path] {
		return
	}
	existing := c.edits[path]

	var buffer []string
	creation := block.IsCreation || (existing != nil && existing.IsCreation)
	if !creation {
		if lines, ok := c.buffers.Lines(path); ok {
			buffer = lines
		}
	}

	edit, err := c.parser.ParseBlock(block, buffer)
	if err != nil {
		c.poisoned[path] = true
		delete(c.edits, path)
		c.errs = append(c.errs, err)
		return
	}
	edit.FilePath = path

	if existing == nil {
		c.edits[path] = edit
		c.order = append(c.order, path)
		existing = edit
	} else {
		existing.Replacements = append(existing.Replacements, edit.Replacements...)
		existing.IsCreation = existing.IsCreation || edit.IsCreation
		existing.IsDeletion = existing.IsDeletion || edit.IsDeletion
		if edit.RenameTarget != "" {
			existing.RenameTarget = edit.RenameTarget
		}
	}
	if existing.RenameTarget != "" {
		c.renames[existing.RenameTarget] = path
	}
}

func (c *editCollector) result(conversation string) *ParseResult {
	var edits []*types.FileEdit
	for _, path := range c.order {
		if edit, ok := c.edits[path]; ok {
			edits = append(edits, edit)
		}
	}
	return &ParseResult{FileEdits: edits, Errors: c.errs, Conversation: conversation}
}
