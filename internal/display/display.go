// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package display renders proposed edits for the terminal: a colored banner
// per file action, removed and added blocks with -/+ gutters, numbered
// context lines around each change, and diagnostics for hunks whose anchor
// lines were not found. Everything returns strings; callers own the writer.
package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/sycomix/mentat/pkg/types"
)

var changeDelimiter = strings.Repeat("=", 60)

var (
	createColor  = color.New(color.FgGreen)
	deleteColor  = color.New(color.FgRed)
	renameColor  = color.New(color.FgCyan)
	updateColor  = color.New(color.FgBlue)
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	contextColor = color.New(color.Faint)
)

// FileAction classifies what an edit does to its file, for banner rendering.
type FileAction int

const (
	ActionUpdate FileAction = iota
	ActionCreate
	ActionDelete
	ActionRename
)

// ActionOf returns the banner action for an edit. Creation and deletion win
// over a rename that rides along with them.
func ActionOf(edit *types.FileEdit) FileAction {
	switch {
	case edit.IsCreation:
		return ActionCreate
	case edit.IsDeletion:
		return ActionDelete
	case edit.RenameTarget != "":
		return ActionRename
	default:
		return ActionUpdate
	}
}

// FileBanner returns the one-line header shown above a file's changes.
// path and newName are display paths, already relativized by the caller.
func FileBanner(action FileAction, path, newName string) string {
	switch action {
	case ActionCreate:
		return createColor.Sprintf("\n%s*", path)
	case ActionDelete:
		return deleteColor.Sprintf("\nDeletion: %s", path)
	case ActionRename:
		return renameColor.Sprintf("\nRename: %s -> %s", path, newName)
	default:
		return updateColor.Sprintf("\n%s", path)
	}
}

// Change is the display form of one proposed change to a file.
type Change struct {
	Path      string
	FileLines []string
	Removed   []string
	Added     []string
	Action    FileAction
	// First and Last bound the replaced range, 0-indexed half-open. Both are
	// -1 for file actions with no content range.
	First   int
	Last    int
	NewName string
}

// NewChange builds the display form of a single replacement against the
// file's current lines.
func NewChange(path string, fileLines []string, r types.Replacement) Change {
	start, end := r.StartingLine, r.EndingLine
	if start > len(fileLines) {
		start = len(fileLines)
	}
	if end > len(fileLines) {
		end = len(fileLines)
	}
	return Change{
		Path:      path,
		FileLines: fileLines,
		Removed:   fileLines[start:end],
		Added:     r.NewLines,
		Action:    ActionUpdate,
		First:     r.StartingLine,
		Last:      r.EndingLine,
	}
}

// NewActionChange builds the display form of a file action. Deletions pass
// the file's lines as the removed block so the whole file shows red.
func NewActionChange(path string, action FileAction, removed []string, newName string) Change {
	return Change{
		Path:    path,
		Removed: removed,
		Action:  action,
		First:   -1,
		Last:    -1,
		NewName: newName,
	}
}

// Render returns the full display block for the change: banner, then the
// numbered context above, the removed and added lines, and the context
// below, fenced by delimiter lines.
func (c Change) Render() string {
	parts := []string{FileBanner(c.Action, c.Path, c.NewName)}
	if len(c.Removed) > 0 || len(c.Added) > 0 {
		parts = append(parts,
			changeDelimiter,
			c.contextAbove(),
			gutterBlock(c.Removed, "-", removedColor, c.gutterWidth(), nil),
			gutterBlock(c.Added, "+", addedColor, c.gutterWidth(), highlighter(c.Path)),
			c.contextBelow(),
			changeDelimiter,
		)
	}
	var out []string
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, "\n")
}

// RenderEdit returns the preview for a whole file edit: its banner action
// plus one change block per replacement.
func RenderEdit(edit *types.FileEdit, fileLines []string, displayPath, displayNewName string) string {
	action := ActionOf(edit)
	if len(edit.Replacements) == 0 {
		removed := []string(nil)
		if action == ActionDelete {
			removed = fileLines
		}
		return NewActionChange(displayPath, action, removed, displayNewName).Render()
	}
	ordered := append([]types.Replacement(nil), edit.Replacements...)
	types.SortForApplication(ordered)
	blocks := make([]string, 0, len(ordered)+1)
	if action != ActionUpdate {
		blocks = append(blocks, FileBanner(action, displayPath, displayNewName))
	}
	// Replacements sort bottom-up for application; show them top-down.
	for i := len(ordered) - 1; i >= 0; i-- {
		blocks = append(blocks, NewChange(displayPath, fileLines, ordered[i]).Render())
	}
	return strings.Join(blocks, "\n")
}

// RenderResolutions describes what conflict resolution did to a file's
// overlapping or colliding changes.
func RenderResolutions(displayPath string, merges, collisions int) string {
	if merges == 0 && collisions == 0 {
		return ""
	}
	var parts []string
	if merges > 0 {
		parts = append(parts, fmt.Sprintf(
			"Change overlap detected, auto-merged %d change(s) in %s", merges, displayPath))
	}
	if collisions > 0 {
		parts = append(parts, fmt.Sprintf(
			"Insertions collide at the same line in %s; keeping both in the order they were given", displayPath))
	}
	return strings.Join(parts, "\n")
}

func (c Change) gutterWidth() int {
	return len(strconv.Itoa(len(c.FileLines)+1)) + 1
}

const contextLines = 2

// contextAbove returns up to two numbered lines before the change, blank
// edges trimmed.
func (c Change) contextAbove() string {
	if c.First < 0 {
		return ""
	}
	end := c.First
	if end > len(c.FileLines) {
		end = len(c.FileLines)
	}
	start := end - contextLines
	if start < 0 {
		start = 0
	}
	return numberedBlock(c.FileLines, start, end, c.gutterWidth())
}

// contextBelow returns up to two numbered lines after the change.
func (c Change) contextBelow() string {
	if c.Last < 0 {
		return ""
	}
	start := c.Last
	if start > len(c.FileLines) {
		start = len(c.FileLines)
	}
	end := start + contextLines
	if end > len(c.FileLines) {
		end = len(c.FileLines)
	}
	return numberedBlock(c.FileLines, start, end, c.gutterWidth())
}

// numberedBlock renders fileLines[start:end) as dimmed "N:" gutter lines,
// numbered 1-indexed by source position, dropping blank lines at the edges.
func numberedBlock(fileLines []string, start, end, width int) string {
	for start < end && strings.TrimSpace(fileLines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(fileLines[end-1]) == "" {
		end--
	}
	if start >= end {
		return ""
	}
	rendered := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		gutter := pad(strconv.Itoa(i+1)+":", width)
		rendered = append(rendered, contextColor.Sprint(gutter+fileLines[i]))
	}
	return strings.Join(rendered, "\n")
}

// gutterBlock renders lines with a fixed-width marker gutter. Without a
// transform the whole line takes the block color; with one (syntax
// highlighting) only the gutter is colored and the transformed content
// keeps its own styling.
func gutterBlock(lines []string, marker string, col *color.Color, width int, transform func([]string) []string) string {
	if len(lines) == 0 {
		return ""
	}
	rendered := make([]string, len(lines))
	if transform != nil {
		content := transform(lines)
		for i, line := range content {
			rendered[i] = col.Sprint(pad(marker, width)) + line
		}
	} else {
		for i, line := range lines {
			rendered[i] = col.Sprint(pad(marker, width) + line)
		}
	}
	return strings.Join(rendered, "\n")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// highlighter returns the added-line transform for a file, or nil when
// highlighting is off.
func highlighter(path string) func([]string) []string {
	if color.NoColor {
		return nil
	}
	return func(lines []string) []string {
		return HighlightLines(path, lines)
	}
}
