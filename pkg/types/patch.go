// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package types

// PatchFormat selects which patch dialect a model response is written in.
type PatchFormat string

const (
	// FormatBlock is the structured block dialect: an @@start fence, a JSON
	// header naming the file and action, an optional @@code body, and an
	// @@end fence. Line numbers in the header are explicit.
	FormatBlock PatchFormat = "block"

	// FormatUnifiedDiff is the diff dialect: ---/+++ file headers followed
	// by @@-separated change groups whose lines carry +/-/space markers.
	// Targets are located by content, not by line number.
	FormatUnifiedDiff PatchFormat = "unified-diff"
)

// Valid reports whether f names a known patch format.
func (f PatchFormat) Valid() bool {
	return f == FormatBlock || f == FormatUnifiedDiff
}

// PatchBlock is one raw patch block lifted out of a model response, tagged
// with the file it targets and the file-level actions it implies. Header
// holds dialect-specific header lines (the block dialect's JSON); Lines
// holds the change body with fences removed.
type PatchBlock struct {
	FilePath     string // Absolute target path
	RenameTarget string // Absolute new path; empty when not renaming
	IsCreation   bool
	IsDeletion   bool
	Format       PatchFormat
	Header       []string
	Lines        []string
}
