// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package parsers

import (
	"fmt"
	"strings"

	"github.com/sycomix/mentat/internal/patch"
	"github.com/sycomix/mentat/pkg/types"
)

const (
	diffOldPrefix = "---"
	diffNewPrefix = "+++"
	diffMidChange = "@@"
	diffEnd       = "@@end"
	devNull       = "/dev/null"
)

// UnifiedDiffParser parses the diff dialect: a ---/+++ file header followed
// by change groups separated with @@ lines and closed with @@end. Change
// lines carry a +, -, or space marker; hunks are located by content, never
// by line number.
type UnifiedDiffParser struct{}

func (p *UnifiedDiffParser) Format() types.PatchFormat { return types.FormatUnifiedDiff }

func (p *UnifiedDiffParser) ProvideLineNumbers() bool { return false }

func (p *UnifiedDiffParser) SystemPrompt() (string, error) {
	return readPrompt("unified_diff_prompt.txt")
}

func (p *UnifiedDiffParser) ParseResponse(response, gitRoot string, buffers BufferSource) *ParseResult {
	collector := newEditCollector(p, buffers)
	var conversation []string

	lines := strings.Split(response, "\n")
	i := 0
	for i < len(lines) {
		// A file header is a --- line immediately followed by a +++ line.
		// A lone --- line is conversation, not a header.
		if !strings.HasPrefix(lines[i], diffOldPrefix) ||
			i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], diffNewPrefix) {
			conversation = append(conversation, lines[i])
			i++
			continue
		}

		block := diffHeaderBlock(gitRoot, lines[i], lines[i+1])
		i += 2
		for i < len(lines) {
			if strings.TrimSpace(lines[i]) == diffEnd {
				i++
				break
			}
			if strings.HasPrefix(lines[i], diffOldPrefix) &&
				i+1 < len(lines) && strings.HasPrefix(lines[i+1], diffNewPrefix) {
				break
			}
			block.Lines = append(block.Lines, lines[i])
			i++
		}
		collector.add(block)
	}
	return collector.result(strings.Join(conversation, "\n"))
}

// diffHeaderBlock reads the two header lines into a tagged block. /dev/null
// as the old name marks a creation, as the new name a deletion; two distinct
// real names mark a rename.
func diffHeaderBlock(gitRoot, oldLine, newLine string) types.PatchBlock {
	oldName := headerName(oldLine)
	newName := headerName(newLine)

	block := types.PatchBlock{Format: types.FormatUnifiedDiff}
	block.IsCreation = oldName == devNull
	block.IsDeletion = newName == devNull
	if block.IsCreation {
		oldName = newName
	}
	block.FilePath = absPath(gitRoot, oldName)
	if oldName != newName && !block.IsDeletion {
		block.RenameTarget = absPath(gitRoot, newName)
	}
	return block
}

// headerName strips the "--- " or "+++ " marker off a header line.
func headerName(line string) string {
	if len(line) <= 4 {
		return ""
	}
	return line[4:]
}

func (p *UnifiedDiffParser) ParseBlock(block types.PatchBlock, buffer []string) (*types.FileEdit, error) {
	if block.IsCreation && block.IsDeletion {
		return nil, &MalformedHunkError{
			File:   block.FilePath,
			Reason: "patch marks the file as both created and deleted",
		}
	}
	edit := types.NewFileEdit(block.FilePath)
	edit.IsCreation = block.IsCreation
	edit.IsDeletion = block.IsDeletion
	edit.RenameTarget = block.RenameTarget

	for _, change := range splitChanges(block.Lines) {
		if err := validateMarkers(block.FilePath, change); err != nil {
			return nil, err
		}
		reps, err := parseChange(block.FilePath, change, buffer)
		if err != nil {
			return nil, err
		}
		edit.Replacements = append(edit.Replacements, reps...)
	}
	return edit, nil
}

// splitChanges breaks the block body into change groups at @@ separator
// lines. A trailing group without a separator is still complete.
func splitChanges(lines []string) [][]string {
	var changes [][]string
	var cur []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == diffMidChange || trimmed == diffEnd {
			changes = append(changes, cur)
			cur = nil
			if trimmed == diffEnd {
				return changes
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		changes = append(changes, cur)
	}
	return changes
}

// validateMarkers rejects a change containing any non-empty line that does
// not carry a +, -, or space marker.
func validateMarkers(file string, change []string) error {
	for _, line := range change {
		if line == "" {
			continue
		}
		switch line[0] {
		case '+', '-', ' ':
		default:
			return &MalformedHunkError{
				File:   file,
				Reason: fmt.Sprintf("line %q does not start with +, -, or space", line),
			}
		}
	}
	return nil
}

// parseChange anchors one change group in the buffer and walks its lines
// into replacements. Context lines close the open run and advance the
// cursor, additions collect into the open run, removals extend the replaced
// range. Empty lines carry no marker and are skipped.
func parseChange(file string, change, buffer []string) ([]types.Replacement, error) {
	var search []string
	for _, line := range change {
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ") {
			search = append(search, line[1:])
		}
	}
	if len(search) == 0 {
		// Pure additions with no context anchor at the top of the file.
		newLines := make([]string, 0, len(change))
		for _, line := range change {
			if line == "" {
				newLines = append(newLines, "")
				continue
			}
			newLines = append(newLines, line[1:])
		}
		return []types.Replacement{{StartingLine: 0, EndingLine: 0, NewLines: newLines}}, nil
	}

	start := patch.Locate(buffer, search)
	if start == patch.NotFound {
		return nil, &AnchorNotFoundError{File: file, Search: search}
	}

	var reps []types.Replacement
	cursor := start
	runStart := -1
	var additions []string
	for _, line := range change {
		switch {
		case strings.HasPrefix(line, " "):
			if runStart >= 0 {
				reps = append(reps, types.Replacement{
					StartingLine: runStart,
					EndingLine:   cursor,
					NewLines:     additions,
				})
			}
			cursor++
			runStart = -1
			additions = nil
		case strings.HasPrefix(line, "+"):
			if runStart < 0 {
				runStart = cursor
			}
			additions = append(additions, line[1:])
		case strings.HasPrefix(line, "-"):
			if runStart < 0 {
				runStart = cursor
			}
			cursor++
		}
	}
	if runStart >= 0 {
		reps = append(reps, types.Replacement{
			StartingLine: runStart,
			EndingLine:   cursor,
			NewLines:     additions,
		})
	}
	return reps, nil
}
