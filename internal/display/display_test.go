// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package display

import (
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sycomix/mentat/pkg/types"
)

func TestMain(m *testing.M) {
	// Plain output so assertions see text, not escape codes.
	color.NoColor = true
	os.Exit(m.Run())
}

func TestActionOf(t *testing.T) {
	edit := types.NewFileEdit("/f")
	assert.Equal(t, ActionUpdate, ActionOf(edit))

	edit.RenameTarget = "/g"
	assert.Equal(t, ActionRename, ActionOf(edit))

	edit.IsDeletion = true
	assert.Equal(t, ActionDelete, ActionOf(edit))

	edit.IsCreation = true
	assert.Equal(t, ActionCreate, ActionOf(edit))
}

func TestFileBanner(t *testing.T) {
	assert.Equal(t, "\nnew.go*", FileBanner(ActionCreate, "new.go", ""))
	assert.Equal(t, "\nDeletion: old.go", FileBanner(ActionDelete, "old.go", ""))
	assert.Equal(t, "\nRename: a.go -> b.go", FileBanner(ActionRename, "a.go", "b.go"))
	assert.Equal(t, "\na.go", FileBanner(ActionUpdate, "a.go", ""))
}

func TestChangeRender(t *testing.T) {
	fileLines := []string{"a", "b", "c", "d", "e", ""}
	change := NewChange("file.txt", fileLines,
		types.Replacement{StartingLine: 2, EndingLine: 3, NewLines: []string{"C"}})

	out := change.Render()
	require.True(t, strings.HasPrefix(out, "\nfile.txt\n"))
	assert.Contains(t, out, changeDelimiter)
	assert.Contains(t, out, "1:a\n2:b")
	assert.Contains(t, out, "- c")
	assert.Contains(t, out, "+ C")
	assert.Contains(t, out, "4:d\n5:e")

	// Context above sits before the removed block, which sits before the
	// added block, which sits before the context below.
	assert.Less(t, strings.Index(out, "2:b"), strings.Index(out, "- c"))
	assert.Less(t, strings.Index(out, "- c"), strings.Index(out, "+ C"))
	assert.Less(t, strings.Index(out, "+ C"), strings.Index(out, "4:d"))
}

func TestChangeRenderClampsPastEOF(t *testing.T) {
	fileLines := []string{"a", "b", ""}
	change := NewChange("f.txt", fileLines,
		types.Replacement{StartingLine: 1, EndingLine: 9, NewLines: []string{"X"}})

	out := change.Render()
	assert.Contains(t, out, "- b")
	assert.Contains(t, out, "+ X")
}

func TestChangeRenderTrimsBlankContext(t *testing.T) {
	fileLines := []string{"a", "", "c", "d", ""}
	change := NewChange("f.txt", fileLines,
		types.Replacement{StartingLine: 2, EndingLine: 3, NewLines: []string{"C"}})

	out := change.Render()
	assert.Contains(t, out, "1:a")
	assert.NotContains(t, out, "2:")
}

func TestRenderEditDeletionShowsWholeFile(t *testing.T) {
	edit := types.NewFileEdit("/repo/f.txt")
	edit.IsDeletion = true

	out := RenderEdit(edit, []string{"only line", ""}, "f.txt", "")
	assert.Contains(t, out, "Deletion: f.txt")
	assert.Contains(t, out, "- only line")
}

func TestRenderEditShowsReplacementsTopDown(t *testing.T) {
	edit := types.NewFileEdit("/repo/f.txt")
	edit.Replacements = []types.Replacement{
		{StartingLine: 3, EndingLine: 4, NewLines: []string{"LOWER"}},
		{StartingLine: 0, EndingLine: 1, NewLines: []string{"UPPER"}},
	}
	fileLines := []string{"a", "b", "c", "d", ""}

	out := RenderEdit(edit, fileLines, "f.txt", "")
	assert.Less(t, strings.Index(out, "UPPER"), strings.Index(out, "LOWER"))
}

func TestRenderEditCreation(t *testing.T) {
	edit := types.NewFileEdit("/repo/new.txt")
	edit.IsCreation = true
	edit.Replacements = []types.Replacement{
		{StartingLine: 0, EndingLine: 0, NewLines: []string{"hello"}},
	}

	out := RenderEdit(edit, nil, "new.txt", "")
	assert.Contains(t, out, "new.txt*")
	assert.Contains(t, out, "+ hello")
}

func TestRenderResolutions(t *testing.T) {
	assert.Empty(t, RenderResolutions("f.txt", 0, 0))

	out := RenderResolutions("f.txt", 2, 1)
	assert.Contains(t, out, "Change overlap detected, auto-merged 2 change(s) in f.txt")
	assert.Contains(t, out, "Insertions collide")
}

func TestHighlightUnknownFileType(t *testing.T) {
	source := "some plain text"
	assert.Equal(t, source, Highlight("notes.zqx", source))
}

func TestHighlightGoSource(t *testing.T) {
	out := Highlight("main.go", "package main")
	assert.Contains(t, out, "package")
	assert.Contains(t, out, "main")
}

func TestHighlightLinesKeepsCount(t *testing.T) {
	lines := []string{"package main", "", "func main() {}"}
	out := HighlightLines("main.go", lines)
	require.Len(t, out, 3)
	assert.Contains(t, out[0], "package")
	assert.Contains(t, out[2], "func")
}

func TestClosestRegion(t *testing.T) {
	buffer := []string{"alpha", "beta", "gamma", "delta"}

	start, region, sim := closestRegion(buffer, []string{"gamma"})
	assert.Equal(t, 2, start)
	assert.Equal(t, []string{"gamma"}, region)
	assert.Equal(t, 1.0, sim)

	start, region, sim = closestRegion(buffer, []string{"betta"})
	assert.Equal(t, 1, start)
	assert.Equal(t, []string{"beta"}, region)
	assert.Greater(t, sim, 0.5)
}

func TestClosestRegionEmptyInputs(t *testing.T) {
	_, region, sim := closestRegion(nil, []string{"x"})
	assert.Empty(t, region)
	assert.Zero(t, sim)

	_, region, sim = closestRegion([]string{"x"}, nil)
	assert.Empty(t, region)
	assert.Zero(t, sim)
}

func TestRenderAnchorFailure(t *testing.T) {
	out := RenderAnchorFailure("f.go",
		[]string{"func misisng() {"},
		[]string{"package main", "func missing() {", "}"})
	assert.Contains(t, out, "Could not find the original lines in f.go")
	assert.Contains(t, out, "- func misisng() {")
	assert.Contains(t, out, "Closest match, lines 2-2")
	assert.Contains(t, out, "2:func missing() {")
}

func TestRenderAnchorFailureNoBuffer(t *testing.T) {
	out := RenderAnchorFailure("f.go", []string{"anything"}, nil)
	assert.Contains(t, out, "Could not find the original lines in f.go")
	assert.NotContains(t, out, "Closest match")
}
