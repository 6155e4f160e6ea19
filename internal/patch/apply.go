// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package patch implements the line-based patch engine: anchoring
// content-addressed hunks in a file's line buffer, resolving overlaps and
// collisions among proposed replacements, and splicing the resolved set
// into a new buffer. The engine performs no I/O; callers own reading and
// writing the files whose buffers pass through it.
package patch

import (
	"fmt"
	"strings"

	"github.com/sycomix/mentat/pkg/types"
)

// OverlapError is returned when ApplyReplacements receives ranges that
// overlap. It signals a skipped or buggy conflict-resolution pass rather
// than bad model output, so callers treat it as an internal failure. The
// offending set is carried for logging.
type OverlapError struct {
	Replacements []types.Replacement
}

func (e *OverlapError) Error() string {
	ranges := make([]string, len(e.Replacements))
	for i, r := range e.Replacements {
		ranges[i] = fmt.Sprintf("[%d,%d)", r.StartingLine, r.EndingLine)
	}
	return "line overlap in replacements: " + strings.Join(ranges, " ")
}

// ApplyReplacements splices a conflict-free replacement set into buffer and
// returns the new buffer. The input buffer is never mutated. Replacements
// are applied bottom-up (descending by ending then starting line, stable),
// so each splice leaves every lower range's offsets intact. A range ending
// past the current buffer length pads the buffer with empty lines first;
// models may address lines past EOF when appending. Overlapping input
// returns an OverlapError and no buffer.
func ApplyReplacements(buffer []string, replacements []types.Replacement) ([]string, error) {
	ordered := append([]types.Replacement(nil), replacements...)
	types.SortForApplication(ordered)

	out := append([]string(nil), buffer...)
	previousStart := -1
	for _, r := range ordered {
		if previousStart >= 0 && r.EndingLine > previousStart {
			return nil, &OverlapError{Replacements: ordered}
		}
		if r.EndingLine > len(out) {
			out = append(out, make([]string, r.EndingLine-len(out))...)
		}
		previousStart = r.StartingLine

		next := make([]string, 0, len(out)-r.Width()+len(r.NewLines))
		next = append(next, out[:r.StartingLine]...)
		next = append(next, r.NewLines...)
		next = append(next, out[r.EndingLine:]...)
		out = next
	}
	return out, nil
}

// ResolveAndApply runs conflict resolution over the edit's replacements and
// applies the resolved set to currentLines. The edit's replacement list is
// rewritten in place to the resolved order, matching its lifecycle: parsed,
// resolved, applied once, discarded. Merges and collisions are returned for
// the caller to report.
func ResolveAndApply(edit *types.FileEdit, currentLines []string) ([]string, []Merge, []Collision, error) {
	resolved, merges, collisions := ResolveConflicts(edit.Replacements)
	edit.Replacements = resolved

	newLines, err := ApplyReplacements(currentLines, resolved)
	if err != nil {
		return nil, merges, collisions, err
	}
	return newLines, merges, collisions, nil
}
