// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package diffcontext labels the session's file content with changes
// relative to a diff target (a commit, branch, or the merge base of a PR
// branch). Annotations are computed line-wise between the target's content
// and the working copy and rendered into the code message so the model sees
// what already changed.
package diffcontext

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sycomix/mentat/internal/gitops"
)

// Annotation is one contiguous changed region: the target lines it removed
// and the working-copy lines it added. Start is the 1-indexed line in the
// working copy where the region begins, matching the numbering used in code
// messages (line 0 is the path header).
type Annotation struct {
	Start   int
	Removed []string
	Added   []string
}

// DiffContext resolves and caches the target the session diffs against.
type DiffContext struct {
	repo   *gitops.Repo
	target string
	name   string
	files  []string
	loaded bool
}

// New resolves the diff target. diff and prDiff are mutually exclusive;
// setting both disables both with a warning, matching the interactive
// behavior. With neither set the target is HEAD.
func New(repo *gitops.Repo, diff, prDiff string) (*DiffContext, []string) {
	var warnings []string

	if diff != "" && prDiff != "" {
		warnings = append(warnings,
			"Cannot specify more than one type of diff. Disabling diff and pr-diff.")
		diff, prDiff = "", ""
	}

	target := diff
	if target == "" {
		target = prDiff
	}
	if target == "" {
		return &DiffContext{repo: repo, target: "HEAD", name: "HEAD (last commit)"}, warnings
	}

	name := ""
	switch {
	case repo.IsBranch(target):
		name = fmt.Sprintf("Branch %s: ", target)
	case strings.ContainsAny(target, "~^"):
		name = fmt.Sprintf("%s: ", target)
	}

	if prDiff != "" {
		name = "Merge-base " + name
		base, err := repo.MergeBase("HEAD", prDiff)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"Cannot identify merge base between HEAD and %s. Disabling pr-diff.", prDiff))
			return &DiffContext{repo: repo, target: "HEAD", name: "HEAD (last commit)"}, warnings
		}
		target = base
	}

	hash, summary, err := repo.TreeishMetadata(target)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf(
			"Invalid treeish %q. Disabling diff.", target))
		return &DiffContext{repo: repo, target: "HEAD", name: "HEAD (last commit)"}, warnings
	}
	name += fmt.Sprintf("%s: %s", hash, summary)

	return &DiffContext{repo: repo, target: target, name: name}, warnings
}

// Target returns the resolved treeish the session diffs against.
func (d *DiffContext) Target() string { return d.target }

// Name returns the operator-facing description of the target.
func (d *DiffContext) Name() string { return d.name }

// Files returns the root-relative paths that differ between the target and
// the working tree. A fresh repository without commits has none.
func (d *DiffContext) Files() ([]string, error) {
	if d.loaded {
		return d.files, nil
	}
	if d.target == "HEAD" && !d.repo.HeadExists() {
		d.loaded = true
		return nil, nil
	}
	files, err := d.repo.FilesChangedSince(d.target)
	if err != nil {
		return nil, err
	}
	d.files = files
	d.loaded = true
	return files, nil
}

// Refresh drops the cached file list so the next Files call re-reads it.
func (d *DiffContext) Refresh() {
	d.files = nil
	d.loaded = false
}

// DisplayContext summarizes the diff for the session banner, e.g.
// " HEAD (last commit) | 2 files | 5 lines".
func (d *DiffContext) DisplayContext(readLines func(rel string) []string) string {
	files, err := d.Files()
	if err != nil || len(files) == 0 {
		return ""
	}
	lines := 0
	for _, rel := range files {
		annotations, err := d.Annotations(rel, readLines(rel))
		if err != nil {
			continue
		}
		for _, a := range annotations {
			lines += len(a.Added) + len(a.Removed)
		}
	}
	return fmt.Sprintf(" %s | %d files | %d lines", d.name, len(files), lines)
}

// Annotations diffs the target's content for rel against the given current
// lines. A file absent from the target counts as all-added.
func (d *DiffContext) Annotations(rel string, currentLines []string) ([]Annotation, error) {
	var targetLines []string
	if d.target != "HEAD" || d.repo.HeadExists() {
		lines, err := d.repo.ContentsAt(d.target, rel)
		switch {
		case errors.Is(err, object.ErrFileNotFound):
		case err != nil:
			return nil, err
		default:
			targetLines = lines
		}
	}
	return ComputeAnnotations(targetLines, currentLines), nil
}

// AnnotateFileMessage weaves annotations into a numbered file message whose
// line 0 is the path header. Added lines replace their numbered originals
// with a "+" marker; removed lines are inserted where they used to be.
func (d *DiffContext) AnnotateFileMessage(rel string, currentLines, message []string) ([]string, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}
	affected := false
	for _, f := range files {
		if f == rel {
			affected = true
			break
		}
	}
	if !affected {
		return message, nil
	}

	annotations, err := d.Annotations(rel, currentLines)
	if err != nil {
		return nil, err
	}
	return AnnotateFileMessage(message, annotations), nil
}

// ComputeAnnotations produces the changed regions between two line buffers
// using a line-mode diff: lines map to runes, the rune diff is cleaned up,
// and adjacent delete/insert runs group into one annotation.
func ComputeAnnotations(targetLines, currentLines []string) []Annotation {
	targetText := strings.Join(targetLines, "\n")
	currentText := strings.Join(currentLines, "\n")
	if targetText == currentText {
		return nil
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToRunes(targetText, currentText)
	diffs := dmp.DiffMainRunes(chars1, chars2, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var annotations []Annotation
	currentPos := 0
	i := 0
	for i < len(diffs) {
		if diffs[i].Type == diffmatchpatch.DiffEqual {
			currentPos += countLines(diffs[i].Text)
			i++
			continue
		}

		annotation := Annotation{Start: currentPos + 1}
		for i < len(diffs) && diffs[i].Type != diffmatchpatch.DiffEqual {
			lines := chunkLines(diffs[i].Text)
			switch diffs[i].Type {
			case diffmatchpatch.DiffDelete:
				annotation.Removed = append(annotation.Removed, lines...)
			case diffmatchpatch.DiffInsert:
				annotation.Added = append(annotation.Added, lines...)
				currentPos += len(lines)
			}
			i++
		}
		annotations = append(annotations, annotation)
	}
	return annotations
}

// AnnotateFileMessage returns message with the annotations woven in. The
// message layout is the code-message one: path header at index 0, numbered
// content lines after it.
func AnnotateFileMessage(message []string, annotations []Annotation) []string {
	annotated := make([]string, 0, len(message))
	active := 0
	for _, a := range annotations {
		start := a.Start
		if start > len(message) {
			start = len(message)
		}
		if active < start {
			annotated = append(annotated, message[active:start]...)
			active = start
		}
		for i, line := range a.Removed {
			annotated = append(annotated, fmt.Sprintf("%d:-%s", a.Start+i, line))
		}
		for _, line := range a.Added {
			annotated = append(annotated, fmt.Sprintf("%d:+%s", active, line))
			if active < len(message) {
				active++
			}
		}
	}
	if active < len(message) {
		annotated = append(annotated, message[active:]...)
	}
	return annotated
}

// countLines counts the lines a diff chunk covers. Chunks carry one line
// per encoded rune, newline-terminated except possibly the last.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if text[len(text)-1] != '\n' {
		n++
	}
	return n
}

// chunkLines splits a diff chunk into its lines, dropping the empty
// remainder a trailing newline leaves behind.
func chunkLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
