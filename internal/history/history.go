// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package history records applied edits as reversible actions so the /undo
// and /undo-all commands can restore earlier file states. Actions within one
// transaction undo in reverse order; a failed action is reported and the
// rest of the transaction still runs.
package history

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNothingToUndo is returned when no transactions remain.
var ErrNothingToUndo = errors.New("no edits available to undo")

// Action is one reversible filesystem step of an applied edit.
type Action interface {
	Undo() error
}

// RenameAction undoes a rename by moving the file back.
type RenameAction struct {
	OldPath string
	CurPath string
}

func (a RenameAction) Undo() error {
	if _, err := os.Stat(a.OldPath); err == nil {
		return fmt.Errorf("file %s already exists; unable to undo rename from %s",
			a.OldPath, a.CurPath)
	}
	if err := os.Rename(a.CurPath, a.OldPath); err != nil {
		return fmt.Errorf("undoing rename of %s: %w", a.CurPath, err)
	}
	return nil
}

// CreationAction undoes a file creation by deleting the file.
type CreationAction struct {
	CurPath string
}

func (a CreationAction) Undo() error {
	if _, err := os.Stat(a.CurPath); err != nil {
		return fmt.Errorf("file %s does not exist; unable to delete", a.CurPath)
	}
	if err := os.Remove(a.CurPath); err != nil {
		return fmt.Errorf("undoing creation of %s: %w", a.CurPath, err)
	}
	return nil
}

// DeletionAction undoes a file deletion by re-creating it with the content
// it held.
type DeletionAction struct {
	OldPath  string
	OldLines []string
}

func (a DeletionAction) Undo() error {
	if _, err := os.Stat(a.OldPath); err == nil {
		return fmt.Errorf("file %s already exists; unable to re-create", a.OldPath)
	}
	if err := os.WriteFile(a.OldPath, []byte(strings.Join(a.OldLines, "\n")), 0o644); err != nil {
		return fmt.Errorf("undoing deletion of %s: %w", a.OldPath, err)
	}
	return nil
}

// EditAction undoes a content edit by restoring the previous lines.
type EditAction struct {
	CurPath  string
	OldLines []string
}

func (a EditAction) Undo() error {
	if _, err := os.Stat(a.CurPath); err != nil {
		return fmt.Errorf("file %s does not exist; unable to undo edit", a.CurPath)
	}
	if err := os.WriteFile(a.CurPath, []byte(strings.Join(a.OldLines, "\n")), 0o644); err != nil {
		return fmt.Errorf("undoing edit of %s: %w", a.CurPath, err)
	}
	return nil
}

// History accumulates actions into transactions, one per applied batch.
type History struct {
	log          *zap.Logger
	transactions [][]Action
	current      []Action
}

func New(log *zap.Logger) *History {
	if log == nil {
		log = zap.NewNop()
	}
	return &History{log: log}
}

// Record adds an action to the open transaction.
func (h *History) Record(action Action) {
	h.current = append(h.current, action)
}

// PushTransaction closes the open transaction, if it has any actions.
func (h *History) PushTransaction() {
	if len(h.current) == 0 {
		return
	}
	h.transactions = append(h.transactions, h.current)
	h.current = nil
	h.log.Debug("edit transaction recorded",
		zap.Int("actions", len(h.transactions[len(h.transactions)-1])),
		zap.Int("transactions", len(h.transactions)))
}

// Undo reverses the most recent transaction, newest action first. Failed
// actions are collected; the rest still run. Returns ErrNothingToUndo when
// no transactions remain.
func (h *History) Undo() error {
	if len(h.transactions) == 0 {
		return ErrNothingToUndo
	}
	last := h.transactions[len(h.transactions)-1]
	h.transactions = h.transactions[:len(h.transactions)-1]

	var errs error
	for i := len(last) - 1; i >= 0; i-- {
		if err := last[i].Undo(); err != nil {
			h.log.Warn("undo action failed", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	h.log.Debug("transaction undone", zap.Int("remaining", len(h.transactions)))
	return errs
}

// UndoAll reverses every recorded transaction, newest first.
func (h *History) UndoAll() error {
	if len(h.transactions) == 0 {
		return ErrNothingToUndo
	}
	var errs error
	for len(h.transactions) > 0 {
		if err := h.Undo(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
