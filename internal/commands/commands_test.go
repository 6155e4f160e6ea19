// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sycomix/mentat/internal/codecontext"
	"github.com/sycomix/mentat/internal/codemap"
	"github.com/sycomix/mentat/internal/config"
	"github.com/sycomix/mentat/internal/conversation"
	"github.com/sycomix/mentat/internal/diffcontext"
	"github.com/sycomix/mentat/internal/filemanager"
	"github.com/sycomix/mentat/internal/gitops"
	"github.com/sycomix/mentat/internal/history"
	"github.com/sycomix/mentat/internal/parsers"
	"github.com/sycomix/mentat/pkg/types"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	r, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := r.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0o644))
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	_, err = wt.Commit("initial commit", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@test.com", When: time.Now()},
	})
	require.NoError(t, err)

	cfg, err := r.Config()
	require.NoError(t, err)
	cfg.User.Name = "Test"
	cfg.User.Email = "test@test.com"
	require.NoError(t, r.SetConfig(cfg))

	return dir
}

// newServices wires a real context and history against a test repository.
func newServices(t *testing.T, dir string) (*Services, *bytes.Buffer) {
	t.Helper()
	repo, err := gitops.Discover(dir)
	require.NoError(t, err)
	cfg := &config.Config{Model: "gpt-4", Format: types.FormatBlock, InputStyle: "colored"}
	files := filemanager.New(repo.Root(), history.New(nil), zap.NewNop())
	diff, _ := diffcontext.New(repo, "", "")
	cctx, _ := codecontext.New(codecontext.Deps{
		Config:    cfg,
		Repo:      repo,
		Files:     files,
		Diff:      diff,
		Extractor: codemap.NewExtractor(),
		Log:       zap.NewNop(),
	}, codecontext.Settings{NoCodeMap: true})

	var out bytes.Buffer
	return &Services{
		Context: cctx,
		History: history.New(nil),
		Repo:    repo,
		Config:  cfg,
		Out:     &out,
	}, &out
}

func TestDispatchInvalidCommand(t *testing.T) {
	var out bytes.Buffer
	s := &Services{Out: &out}

	require.NoError(t, Dispatch(s, "/frobnicate"))
	assert.Contains(t, out.String(),
		"frobnicate is not a valid command. Use /help to see a list of all valid commands")
}

func TestDispatchBareSlash(t *testing.T) {
	var out bytes.Buffer
	s := &Services{Out: &out}

	require.NoError(t, Dispatch(s, "/"))
	assert.Contains(t, out.String(), "/ is not a valid command")
}

func TestHelpListsAllCommands(t *testing.T) {
	var out bytes.Buffer
	s := &Services{Out: &out}

	require.NoError(t, Dispatch(s, "/help"))
	output := out.String()

	assert.Contains(t, output, fmt.Sprintf("%-60s", "/help")+"Displays this message")
	assert.Contains(t, output, "/commit <commit_message=Automatic commit>")
	assert.Contains(t, output, "/include <file1> <file2> <...>")
	assert.Contains(t, output, "/undo-all")
	assert.Contains(t, output, "/context")
	assert.Contains(t, output, "/config")
}

func TestHelpUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	s := &Services{Out: &out}

	require.NoError(t, Dispatch(s, "/help bogus clear"))
	assert.Contains(t, out.String(), "Error: Command bogus does not exist.")
	assert.Contains(t, out.String(), "Clear the current conversation's message history")
}

func TestForName(t *testing.T) {
	_, ok := ForName("help").(helpCommand)
	assert.True(t, ok)

	_, ok = ForName("frobnicate").(invalidCommand)
	assert.True(t, ok)
}

func TestCompletions(t *testing.T) {
	completions := Completions()
	assert.Len(t, completions, len(registry))
	assert.Equal(t, "/help", completions[0])
	assert.Contains(t, completions, "/undo-all")
	assert.Contains(t, completions, "/context")
}

func TestIncludeNoArgs(t *testing.T) {
	var out bytes.Buffer
	s := &Services{Out: &out}

	require.NoError(t, Dispatch(s, "/include"))
	assert.Contains(t, out.String(), "No files specified")
}

func TestIncludeAddsFile(t *testing.T) {
	dir := initTestRepo(t)
	s, out := newServices(t, dir)

	require.NoError(t, Dispatch(s, "/include main.go"))
	assert.Contains(t, out.String(), "main.go added to context")
	assert.Equal(t, []string{filepath.Join(dir, "main.go")}, s.Context.IncludedPaths())
}

func TestIncludeNonTextSkipped(t *testing.T) {
	dir := initTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"),
		[]byte{0xff, 0xfe, 0x00, 0x92}, 0o644))
	s, out := newServices(t, dir)

	require.NoError(t, Dispatch(s, "/include blob.bin"))
	assert.Contains(t, out.String(), "is not text encoded, and was skipped.")
	assert.NotContains(t, out.String(), "added to context")
	assert.Empty(t, s.Context.IncludedPaths())
}

func TestExcludeRemovesFile(t *testing.T) {
	dir := initTestRepo(t)
	s, out := newServices(t, dir)

	require.NoError(t, Dispatch(s, "/include main.go"))
	require.NoError(t, Dispatch(s, "/exclude main.go"))
	assert.Contains(t, out.String(), "main.go removed from context")
	assert.Empty(t, s.Context.IncludedPaths())
}

func TestExcludeNoArgs(t *testing.T) {
	var out bytes.Buffer
	s := &Services{Out: &out}

	require.NoError(t, Dispatch(s, "/exclude"))
	assert.Contains(t, out.String(), "No files specified")
}

func TestCommitDefaultMessage(t *testing.T) {
	dir := initTestRepo(t)
	s, _ := newServices(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("fresh\n"), 0o644))

	require.NoError(t, Dispatch(s, "/commit"))

	_, summary, err := s.Repo.TreeishMetadata("HEAD")
	require.NoError(t, err)
	assert.Equal(t, "Automatic commit", summary)
}

func TestCommitCustomMessage(t *testing.T) {
	dir := initTestRepo(t)
	s, _ := newServices(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("fresh\n"), 0o644))

	require.NoError(t, Dispatch(s, "/commit checkpoint"))

	_, summary, err := s.Repo.TreeishMetadata("HEAD")
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", summary)
}

func TestUndoRestoresFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("after"), 0o644))

	hist := history.New(nil)
	hist.Record(history.EditAction{CurPath: path, OldLines: []string{"before"}})
	hist.PushTransaction()

	var out bytes.Buffer
	s := &Services{History: hist, Out: &out}
	require.NoError(t, Dispatch(s, "/undo"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "before", string(content))
	assert.Contains(t, out.String(), "Undo complete")
}

func TestUndoNothingToUndo(t *testing.T) {
	var out bytes.Buffer
	s := &Services{History: history.New(nil), Out: &out}

	require.NoError(t, Dispatch(s, "/undo"))
	assert.Contains(t, out.String(), "no edits available to undo")
	assert.Contains(t, out.String(), "Undo complete")
}

func TestUndoAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("v3"), 0o644))

	hist := history.New(nil)
	hist.Record(history.EditAction{CurPath: path, OldLines: []string{"v1"}})
	hist.PushTransaction()
	hist.Record(history.EditAction{CurPath: path, OldLines: []string{"v2"}})
	hist.PushTransaction()

	var out bytes.Buffer
	s := &Services{History: hist, Out: &out}
	require.NoError(t, Dispatch(s, "/undo-all"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
	assert.Contains(t, out.String(), "Undos complete")
}

func TestClearKeepsSystemMessages(t *testing.T) {
	conv, err := conversation.New(conversation.Deps{
		Parser: &parsers.BlockParser{},
		Config: &config.Config{Model: "gpt-4"},
	})
	require.NoError(t, err)
	conv.AddUserMessage("hi")
	conv.AddModelMessage("hello")

	var out bytes.Buffer
	s := &Services{Conversation: conv, Out: &out}
	require.NoError(t, Dispatch(s, "/clear"))

	messages := conv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, types.RoleSystem, messages[0].Role)
	assert.Contains(t, out.String(), "Message history cleared")
}

func TestContextShowsIncludedFiles(t *testing.T) {
	dir := initTestRepo(t)
	s, out := newServices(t, dir)

	require.NoError(t, Dispatch(s, "/include main.go"))
	require.NoError(t, Dispatch(s, "/context"))

	output := out.String()
	assert.Contains(t, output, "Code Context:")
	assert.Contains(t, output, "Included files:")
	assert.Contains(t, output, "main.go")
}

func TestConfigShowsSettings(t *testing.T) {
	dir := initTestRepo(t)
	s, out := newServices(t, dir)

	require.NoError(t, Dispatch(s, "/config"))

	output := out.String()
	assert.Contains(t, output, "model: gpt-4")
	assert.Contains(t, output, "format: block")
	assert.Contains(t, output, "input-style: colored")
	assert.Contains(t, output, "maximum-context: 0")
}
