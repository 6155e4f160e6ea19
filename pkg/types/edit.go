// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package types

import "sort"

// Replacement is a single proposed edit: the half-open line range
// [StartingLine, EndingLine) in the current file buffer and the lines that
// should occupy it. StartingLine == EndingLine denotes a pure insertion
// before that line; empty NewLines denotes a pure deletion.
type Replacement struct {
	StartingLine int      // Inclusive, 0-indexed
	EndingLine   int      // Exclusive; always >= StartingLine
	NewLines     []string // Lines that replace the range (may be empty)
}

// IsInsertion reports whether the replacement consumes no original lines.
func (r Replacement) IsInsertion() bool {
	return r.StartingLine == r.EndingLine
}

// Width returns the number of original lines the replacement consumes.
func (r Replacement) Width() int {
	return r.EndingLine - r.StartingLine
}

// SortForApplication orders replacements bottom-up: descending by
// (EndingLine, StartingLine). The sort is stable, so replacements with equal
// ranges (insertions colliding at one point) keep the order they were
// produced in. Applying in this order keeps lower ranges' offsets valid
// while higher ranges are spliced.
func SortForApplication(replacements []Replacement) {
	sort.SliceStable(replacements, func(i, j int) bool {
		if replacements[i].EndingLine != replacements[j].EndingLine {
			return replacements[i].EndingLine > replacements[j].EndingLine
		}
		return replacements[i].StartingLine > replacements[j].StartingLine
	})
}

// FileEdit is the per-file edit envelope: content replacements plus
// creation, deletion, and rename actions. FilePath and RenameTarget are
// absolute paths.
type FileEdit struct {
	FilePath     string
	Replacements []Replacement
	IsCreation   bool
	IsDeletion   bool
	RenameTarget string // Empty when the file keeps its name
}

// NewFileEdit returns a FileEdit for path with no pending actions.
func NewFileEdit(path string) *FileEdit {
	return &FileEdit{FilePath: path}
}

// HasChanges reports whether the edit would do anything at all: any file
// action or at least one replacement.
func (e *FileEdit) HasChanges() bool {
	return e.IsCreation || e.IsDeletion || e.RenameTarget != "" || len(e.Replacements) > 0
}
