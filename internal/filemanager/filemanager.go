// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package filemanager owns file access for the edit pipeline. It reads files
// into line buffers and snapshots them so later writes can detect that a file
// changed underneath a pending edit, applies validated FileEdits to disk with
// per-file lifecycle guards, and records every applied action in the undo
// history. Failures are per file: a rejected or failed edit never stops the
// rest of the batch.
package filemanager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sycomix/mentat/internal/history"
	"github.com/sycomix/mentat/internal/patch"
	"github.com/sycomix/mentat/pkg/types"
)

// Confirmer asks the user a yes/no question during edit application.
type Confirmer interface {
	Confirm(prompt string, defaultYes bool) bool
}

// ApproveAll is a Confirmer that accepts every prompt, for scripted use.
type ApproveAll struct{}

func (ApproveAll) Confirm(string, bool) bool { return true }

// FileOutcome describes what applying one FileEdit did to disk.
type FileOutcome struct {
	Path        string // Final absolute path, after any rename
	RenamedFrom string // Original path when the edit renamed the file
	Created     bool
	Deleted     bool
	Edited      bool
	Merges      []patch.Merge
	Collisions  []patch.Collision
}

// WriteResult reports the applied batch: one outcome per file that changed,
// plus user-facing warnings for everything rejected or adjusted.
type WriteResult struct {
	Outcomes []FileOutcome
	Warnings []string
}

type checksumEntry struct {
	modTime time.Time
	size    int64
	sum     string
}

// Manager reads and writes the files the session edits.
type Manager struct {
	log     *zap.Logger
	gitRoot string
	history *history.History

	// fileLines holds the lines each file had when it was last read, keyed
	// by absolute path. Writes compare against this snapshot to catch files
	// that changed while the model was generating.
	fileLines map[string][]string
	checksums map[string]checksumEntry
}

func New(gitRoot string, hist *history.History, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:       log,
		gitRoot:   gitRoot,
		history:   hist,
		fileLines: make(map[string][]string),
		checksums: make(map[string]checksumEntry),
	}
}

// History returns the undo history the manager records into.
func (m *Manager) History() *history.History { return m.history }

// ReadFile reads path from disk, splits it on newlines, and snapshots the
// result for later staleness comparison. Relative paths resolve against the
// repository root.
func (m *Manager) ReadFile(path string) ([]string, error) {
	abs := m.abs(path)
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}
	lines := strings.Split(string(data), "\n")
	m.fileLines[abs] = lines
	return lines, nil
}

// Lines returns the current lines of path, reading from disk. It is the
// buffer source the parsers anchor against; the read also records the
// snapshot that WriteChanges later checks for staleness.
func (m *Manager) Lines(path string) ([]string, bool) {
	lines, err := m.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return lines, true
}

// StoredLines returns the snapshot from the last read of path, if any.
func (m *Manager) StoredLines(path string) ([]string, bool) {
	lines, ok := m.fileLines[m.abs(path)]
	return lines, ok
}

// Checksum returns the content checksum of path, or "" for directories and
// unreadable files. Results are memoized by modification time and size.
func (m *Manager) Checksum(path string) string {
	abs := m.abs(path)
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return ""
	}
	if entry, ok := m.checksums[abs]; ok &&
		entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.sum
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return ""
	}
	sum := patch.Checksum(strings.Split(string(data), "\n"))
	m.checksums[abs] = checksumEntry{modTime: info.ModTime(), size: info.Size(), sum: sum}
	return sum
}

// WriteChanges applies a batch of file edits to disk. permitted is the set
// of absolute paths the session has in context; edits to files outside it
// are rejected. confirm gates destructive or surprising steps (file
// deletion, applying to a file that changed since it was read). Every
// applied action lands in the undo history as one transaction.
func (m *Manager) WriteChanges(edits []*types.FileEdit, permitted map[string]bool, confirm Confirmer) (*WriteResult, error) {
	if confirm == nil {
		confirm = ApproveAll{}
	}
	result := &WriteResult{}
	for _, edit := range edits {
		outcome, err := m.applyEdit(edit, permitted, confirm, result)
		if err != nil {
			m.history.PushTransaction()
			return result, err
		}
		if outcome != nil {
			result.Outcomes = append(result.Outcomes, *outcome)
		}
	}
	m.history.PushTransaction()
	return result, nil
}

// applyEdit runs one edit through the lifecycle guards and applies it.
// A nil outcome with nil error means the edit was rejected or was a no-op;
// the rejection reason is already in result.Warnings. A non-nil error is an
// internal invariant failure and aborts the batch.
func (m *Manager) applyEdit(edit *types.FileEdit, permitted map[string]bool, confirm Confirmer, result *WriteResult) (*FileOutcome, error) {
	path := m.abs(edit.FilePath)
	rel := m.rel(path)
	outcome := &FileOutcome{Path: path}

	if edit.IsCreation {
		if fileExists(path) {
			result.warnf("File %s already exists, canceling creation.", rel)
			return nil, nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			result.warnf("Could not create directory for %s: %v", rel, err)
			return nil, nil
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			result.warnf("Could not create %s: %v", rel, err)
			return nil, nil
		}
		m.history.Record(history.CreationAction{CurPath: path})
		m.log.Info("created file", zap.String("path", rel))
		outcome.Created = true
	} else {
		if !fileExists(path) {
			result.warnf("File %s does not exist, canceling all edits to file.", rel)
			return nil, nil
		}
		if !permitted[path] {
			result.warnf("File %s not in context, canceling all edits to file.", rel)
			return nil, nil
		}
	}

	if edit.IsDeletion {
		if confirm.Confirm(fmt.Sprintf("Are you sure you want to delete %s?", rel), false) {
			current, err := m.ReadFile(path)
			if err != nil {
				result.warnf("Could not delete %s: %v", rel, err)
				return nil, nil
			}
			m.history.Record(history.DeletionAction{OldPath: path, OldLines: current})
			if err := os.Remove(path); err != nil {
				result.warnf("Could not delete %s: %v", rel, err)
				return nil, nil
			}
			delete(m.fileLines, path)
			m.log.Info("deleted file", zap.String("path", rel))
			outcome.Deleted = true
			return outcome, nil
		}
		result.warnf("Not deleting %s", rel)
	}

	// The model's replacements were anchored against the snapshot taken when
	// the response was parsed. If the file on disk has moved on since then,
	// applying would erase whatever changed it.
	var storedLines []string
	if !edit.IsCreation {
		stored, ok := m.fileLines[path]
		current, err := m.ReadFile(path)
		if err != nil {
			result.warnf("Could not read %s: %v", rel, err)
			return nil, nil
		}
		if !ok {
			stored = current
		}
		if !patch.Equal(stored, current) {
			m.log.Info("file changed while generating", zap.String("path", rel))
			prompt := fmt.Sprintf(
				"File '%s' changed while generating; current file changes will be erased. Continue?", rel)
			if !confirm.Confirm(prompt, false) {
				result.warnf("Not applying changes to file %s", rel)
				return nil, nil
			}
		}
		storedLines = stored
	}

	if edit.RenameTarget != "" {
		target := m.abs(edit.RenameTarget)
		if fileExists(target) {
			result.warnf("File %s being renamed to existing file %s, canceling rename.",
				rel, m.rel(target))
		} else if err := os.Rename(path, target); err != nil {
			result.warnf("Could not rename %s: %v", rel, err)
		} else {
			m.history.Record(history.RenameAction{OldPath: path, CurPath: target})
			m.log.Info("renamed file",
				zap.String("from", rel), zap.String("to", m.rel(target)))
			delete(m.fileLines, path)
			outcome.RenamedFrom = path
			path = target
			rel = m.rel(path)
			outcome.Path = path
		}
	}

	newLines, merges, collisions, err := patch.ResolveAndApply(edit, storedLines)
	if err != nil {
		// Overlap after resolution is an internal invariant failure, not bad
		// model output. Log the offending set and abort the batch.
		m.log.Error("replacement overlap after conflict resolution",
			zap.String("path", rel), zap.Error(err))
		return nil, err
	}
	outcome.Merges = merges
	outcome.Collisions = collisions

	if !patch.Equal(newLines, storedLines) {
		current, err := m.ReadFile(path)
		if err != nil {
			result.warnf("Could not read %s: %v", rel, err)
			return nil, nil
		}
		m.history.Record(history.EditAction{CurPath: path, OldLines: current})
		if err := m.atomicWrite(path, strings.Join(newLines, "\n")); err != nil {
			result.warnf("Could not write %s: %v", rel, err)
			return nil, nil
		}
		m.fileLines[path] = newLines
		outcome.Edited = true
	}

	if outcome.Created || outcome.Deleted || outcome.Edited || outcome.RenamedFrom != "" {
		return outcome, nil
	}
	return nil, nil
}

func (r *WriteResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (m *Manager) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(m.gitRoot, path)
}

func (m *Manager) rel(path string) string {
	rel, err := filepath.Rel(m.gitRoot, path)
	if err != nil {
		return path
	}
	return rel
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place, preserving the mode of an existing file.
func (m *Manager) atomicWrite(path, data string) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".mentat-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.WriteString(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
