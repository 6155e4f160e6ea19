// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package commands implements the session's slash commands. Each command
// acts on the injected Services and writes its feedback to Services.Out;
// the registry drives both dispatch and the terminal completer.
package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/sycomix/mentat/internal/codecontext"
	"github.com/sycomix/mentat/internal/config"
	"github.com/sycomix/mentat/internal/conversation"
	"github.com/sycomix/mentat/internal/gitops"
	"github.com/sycomix/mentat/internal/history"
)

const (
	helpMessageWidth     = 60
	defaultCommitMessage = "Automatic commit"
)

var (
	invalidColor = color.New(color.FgHiYellow)
	skipColor    = color.New(color.FgHiYellow)
	warnColor    = color.New(color.FgYellow)
	okColor      = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
)

// Services are the session capabilities commands act on.
type Services struct {
	Context      *codecontext.Context
	Conversation *conversation.Conversation
	History      *history.History
	Repo         *gitops.Repo
	Config       *config.Config
	Out          io.Writer
}

// Command is one slash command.
type Command interface {
	Apply(s *Services, args ...string) error
	ArgumentNames() []string
	HelpMessage() string
}

var registry = map[string]Command{
	"help":     helpCommand{},
	"commit":   commitCommand{},
	"include":  includeCommand{},
	"exclude":  excludeCommand{},
	"undo":     undoCommand{},
	"undo-all": undoAllCommand{},
	"clear":    clearCommand{},
	"context":  contextCommand{},
	"config":   configCommand{},
}

// order fixes the /help listing.
var order = []string{
	"help", "commit", "include", "exclude", "undo", "undo-all", "clear",
	"context", "config",
}

// ForName returns the command registered under name. Unknown names get a
// stub that points the user at /help.
func ForName(name string) Command {
	if cmd, ok := registry[name]; ok {
		return cmd
	}
	return invalidCommand{name: name}
}

// Dispatch splits "/command arg..." input and runs the command.
func Dispatch(s *Services, input string) error {
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return invalidCommand{name: input}.Apply(s)
	}
	return ForName(fields[0]).Apply(s, fields[1:]...)
}

// Completions returns every command with its slash prefix for the terminal
// completer.
func Completions() []string {
	names := make([]string, len(order))
	for i, name := range order {
		names[i] = "/" + name
	}
	return names
}

type invalidCommand struct{ name string }

func (c invalidCommand) Apply(s *Services, args ...string) error {
	fmt.Fprintln(s.Out, invalidColor.Sprintf(
		"%s is not a valid command. Use /help to see a list of all valid commands",
		c.name))
	return nil
}

func (c invalidCommand) ArgumentNames() []string { return nil }
func (c invalidCommand) HelpMessage() string     { return "" }

type helpCommand struct{}

func (helpCommand) Apply(s *Services, args ...string) error {
	names := args
	if len(names) == 0 {
		names = order
	}
	for _, name := range names {
		cmd, ok := registry[name]
		if !ok {
			fmt.Fprintln(s.Out, errorColor.Sprintf("Error: Command %s does not exist.", name))
			continue
		}
		usage := "/" + name
		for _, arg := range cmd.ArgumentNames() {
			usage += " <" + arg + ">"
		}
		fmt.Fprintln(s.Out, fmt.Sprintf("%-*s", helpMessageWidth, usage)+cmd.HelpMessage())
	}
	return nil
}

func (helpCommand) ArgumentNames() []string { return nil }
func (helpCommand) HelpMessage() string     { return "Displays this message" }

type commitCommand struct{}

func (commitCommand) Apply(s *Services, args ...string) error {
	message := defaultCommitMessage
	if len(args) > 0 {
		message = args[0]
	}
	return s.Repo.Commit(message)
}

func (commitCommand) ArgumentNames() []string {
	return []string{"commit_message=" + defaultCommitMessage}
}

func (commitCommand) HelpMessage() string {
	return "Commits all of your unstaged and staged changes to git"
}

type includeCommand struct{}

func (includeCommand) Apply(s *Services, args ...string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.Out, warnColor.Sprint("No files specified\n"))
		return nil
	}
	for _, path := range args {
		invalid := s.Context.IncludeFile(path)
		for _, p := range invalid {
			fmt.Fprintln(s.Out, skipColor.Sprintf(
				"File path %s is not text encoded, and was skipped.", p))
		}
		if len(invalid) == 0 {
			fmt.Fprintln(s.Out, okColor.Sprintf("%s added to context", path))
		}
	}
	return nil
}

func (includeCommand) ArgumentNames() []string { return []string{"file1", "file2", "..."} }
func (includeCommand) HelpMessage() string     { return "Add files to the code context" }

type excludeCommand struct{}

func (excludeCommand) Apply(s *Services, args ...string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.Out, warnColor.Sprint("No files specified\n"))
		return nil
	}
	for _, path := range args {
		s.Context.ExcludeFile(path)
		fmt.Fprintln(s.Out, okColor.Sprintf("%s removed from context", path))
	}
	return nil
}

func (excludeCommand) ArgumentNames() []string { return []string{"file1", "file2", "..."} }
func (excludeCommand) HelpMessage() string     { return "Remove files from the code context" }

type undoCommand struct{}

func (undoCommand) Apply(s *Services, args ...string) error {
	if err := s.History.Undo(); err != nil {
		fmt.Fprintln(s.Out, err.Error())
	}
	fmt.Fprintln(s.Out, okColor.Sprint("Undo complete"))
	return nil
}

func (undoCommand) ArgumentNames() []string { return nil }
func (undoCommand) HelpMessage() string     { return "Undo the last change made by Mentat" }

type undoAllCommand struct{}

func (undoAllCommand) Apply(s *Services, args ...string) error {
	if err := s.History.UndoAll(); err != nil {
		fmt.Fprintln(s.Out, err.Error())
	}
	fmt.Fprintln(s.Out, okColor.Sprint("Undos complete"))
	return nil
}

func (undoAllCommand) ArgumentNames() []string { return nil }
func (undoAllCommand) HelpMessage() string     { return "Undo all changes made by Mentat" }

type clearCommand struct{}

func (clearCommand) Apply(s *Services, args ...string) error {
	s.Conversation.Clear()
	fmt.Fprintln(s.Out, okColor.Sprint("Message history cleared"))
	return nil
}

func (clearCommand) ArgumentNames() []string { return nil }
func (clearCommand) HelpMessage() string {
	return "Clear the current conversation's message history"
}

type contextCommand struct{}

func (contextCommand) Apply(s *Services, args ...string) error {
	for _, line := range s.Context.DisplayContext() {
		fmt.Fprintln(s.Out, line)
	}
	return nil
}

func (contextCommand) ArgumentNames() []string { return nil }
func (contextCommand) HelpMessage() string {
	return "Show all files currently in the code context"
}

type configCommand struct{}

func (configCommand) Apply(s *Services, args ...string) error {
	c := s.Config
	settings := []struct{ name, value string }{
		{"model", c.Model},
		{"format", string(c.Format)},
		{"maximum-context", strconv.Itoa(c.MaximumContext)},
		{"file-exclude-glob-list", strings.Join(c.FileExcludeGlobList, ", ")},
		{"input-style", c.InputStyle},
		{"use-embedded-prompts", strconv.FormatBool(c.UseEmbeddedPrompts)},
	}
	for _, setting := range settings {
		fmt.Fprintf(s.Out, "%s: %s\n", setting.name, setting.value)
	}
	return nil
}

func (configCommand) ArgumentNames() []string { return nil }
func (configCommand) HelpMessage() string     { return "Show the current configuration" }
