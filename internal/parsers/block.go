// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sycomix/mentat/pkg/types"
)

const (
	blockStart = "@@start"
	blockCode  = "@@code"
	blockEnd   = "@@end"
)

// BlockParser parses the structured block dialect: an @@start fence, a JSON
// header naming the target file and the action, an optional @@code body, and
// an @@end fence. Line numbers in the header are explicit and 1-indexed, so
// no anchoring is performed.
type BlockParser struct{}

// blockHeader is the JSON header inside an @@start fence. Line fields are
// pointers so a missing field can be told apart from zero.
type blockHeader struct {
	File             string `json:"file"`
	Action           string `json:"action"`
	Name             string `json:"name"`
	StartLine        *int   `json:"start-line"`
	EndLine          *int   `json:"end-line"`
	InsertAfterLine  *int   `json:"insert-after-line"`
	InsertBeforeLine *int   `json:"insert-before-line"`
}

func (p *BlockParser) Format() types.PatchFormat { return types.FormatBlock }

func (p *BlockParser) ProvideLineNumbers() bool { return true }

func (p *BlockParser) SystemPrompt() (string, error) {
	return readPrompt("block_prompt.txt")
}

func (p *BlockParser) ParseResponse(response, gitRoot string, buffers BufferSource) *ParseResult {
	collector := newEditCollector(p, buffers)
	var conversation []string

	lines := strings.Split(response, "\n")
	i := 0
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) != blockStart {
			conversation = append(conversation, lines[i])
			i++
			continue
		}
		i++

		var header []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != blockCode &&
			strings.TrimSpace(lines[i]) != blockEnd {
			header = append(header, lines[i])
			i++
		}
		var body []string
		if i < len(lines) && strings.TrimSpace(lines[i]) == blockCode {
			i++
			for i < len(lines) && strings.TrimSpace(lines[i]) != blockEnd {
				body = append(body, lines[i])
				i++
			}
		}
		if i < len(lines) {
			i++ // consume @@end
		}

		block, err := blockFromHeader(gitRoot, header, body)
		if err != nil {
			collector.errs = append(collector.errs, err)
			continue
		}
		collector.add(block)
	}
	return collector.result(strings.Join(conversation, "\n"))
}

// blockFromHeader tags a raw block with the file path and file-level actions
// from its JSON header. The header stays attached for ParseBlock.
func blockFromHeader(gitRoot string, header, body []string) (types.PatchBlock, error) {
	h, err := parseBlockHeader(header)
	if err != nil {
		return types.PatchBlock{}, err
	}
	block := types.PatchBlock{
		FilePath: absPath(gitRoot, h.File),
		Format:   types.FormatBlock,
		Header:   header,
		Lines:    body,
	}
	switch h.Action {
	case "create-file":
		block.IsCreation = true
	case "delete-file":
		block.IsDeletion = true
	case "rename-file":
		if h.Name == "" {
			return types.PatchBlock{}, &MalformedHunkError{
				File:   block.FilePath,
				Reason: "rename-file block is missing the name field",
			}
		}
		block.RenameTarget = absPath(gitRoot, h.Name)
	}
	return block, nil
}

func parseBlockHeader(header []string) (*blockHeader, error) {
	var h blockHeader
	raw := strings.Join(header, "\n")
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, &MalformedHunkError{Reason: fmt.Sprintf("unparseable block header: %v", err)}
	}
	if h.File == "" {
		return nil, &MalformedHunkError{Reason: "block header is missing the file field"}
	}
	if h.Action == "" {
		return nil, &MalformedHunkError{File: h.File, Reason: "block header is missing the action field"}
	}
	return &h, nil
}

func (p *BlockParser) ParseBlock(block types.PatchBlock, buffer []string) (*types.FileEdit, error) {
	h, err := parseBlockHeader(block.Header)
	if err != nil {
		return nil, err
	}

	edit := types.NewFileEdit(block.FilePath)
	edit.IsCreation = block.IsCreation
	edit.IsDeletion = block.IsDeletion
	edit.RenameTarget = block.RenameTarget

	switch h.Action {
	case "insert":
		point, err := insertionPoint(block.FilePath, h)
		if err != nil {
			return nil, err
		}
		edit.Replacements = append(edit.Replacements, types.Replacement{
			StartingLine: point,
			EndingLine:   point,
			NewLines:     block.Lines,
		})
	case "replace":
		start, end, err := lineRange(block.FilePath, h)
		if err != nil {
			return nil, err
		}
		edit.Replacements = append(edit.Replacements, types.Replacement{
			StartingLine: start,
			EndingLine:   end,
			NewLines:     block.Lines,
		})
	case "delete":
		start, end, err := lineRange(block.FilePath, h)
		if err != nil {
			return nil, err
		}
		if len(block.Lines) > 0 {
			return nil, &MalformedHunkError{File: block.FilePath, Reason: "delete block carries a code body"}
		}
		edit.Replacements = append(edit.Replacements, types.Replacement{
			StartingLine: start,
			EndingLine:   end,
		})
	case "create-file":
		if len(block.Lines) > 0 {
			edit.Replacements = append(edit.Replacements, types.Replacement{
				StartingLine: 0,
				EndingLine:   0,
				NewLines:     block.Lines,
			})
		}
	case "delete-file", "rename-file":
	default:
		return nil, &MalformedHunkError{
			File:   block.FilePath,
			Reason: fmt.Sprintf("unknown action %q", h.Action),
		}
	}
	return edit, nil
}

// insertionPoint converts the 1-indexed insert-after-line (or the redundant
// insert-before-line) to a 0-indexed insertion index. Inserting after line 0
// means the top of the file.
func insertionPoint(file string, h *blockHeader) (int, error) {
	after := -1
	switch {
	case h.InsertAfterLine != nil:
		after = *h.InsertAfterLine
		if h.InsertBeforeLine != nil && *h.InsertBeforeLine != after+1 {
			return 0, &MalformedHunkError{
				File:   file,
				Reason: "insert-before-line does not follow insert-after-line",
			}
		}
	case h.InsertBeforeLine != nil:
		after = *h.InsertBeforeLine - 1
	default:
		return 0, &MalformedHunkError{
			File:   file,
			Reason: "insert block needs insert-after-line or insert-before-line",
		}
	}
	if after < 0 {
		return 0, &MalformedHunkError{File: file, Reason: "insertion line out of range"}
	}
	return after, nil
}

// lineRange converts a 1-indexed inclusive start-line/end-line pair to a
// 0-indexed half-open range.
func lineRange(file string, h *blockHeader) (int, int, error) {
	if h.StartLine == nil || h.EndLine == nil {
		return 0, 0, &MalformedHunkError{
			File:   file,
			Reason: fmt.Sprintf("%s block needs start-line and end-line", h.Action),
		}
	}
	start, end := *h.StartLine, *h.EndLine
	if start < 1 || end < start {
		return 0, 0, &MalformedHunkError{
			File:   file,
			Reason: fmt.Sprintf("invalid line range %d-%d", start, end),
		}
	}
	return start - 1, end, nil
}
