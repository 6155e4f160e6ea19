// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package session wires the tool's components together and drives the
// interactive loop: read input, dispatch slash commands, run conversation
// turns, preview and apply the resulting edits.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sycomix/mentat/internal/codecontext"
	"github.com/sycomix/mentat/internal/codemap"
	"github.com/sycomix/mentat/internal/commands"
	"github.com/sycomix/mentat/internal/config"
	"github.com/sycomix/mentat/internal/conversation"
	"github.com/sycomix/mentat/internal/diffcontext"
	"github.com/sycomix/mentat/internal/display"
	"github.com/sycomix/mentat/internal/filemanager"
	"github.com/sycomix/mentat/internal/gitops"
	"github.com/sycomix/mentat/internal/history"
	"github.com/sycomix/mentat/internal/llm"
	"github.com/sycomix/mentat/internal/logging"
	"github.com/sycomix/mentat/internal/parsers"
	"github.com/sycomix/mentat/pkg/types"
)

var (
	inputColor = color.New(color.FgHiBlue)
	warnColor  = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
	errorColor = color.New(color.FgRed)
)

// InputReader supplies one line of user input per call. io.EOF ends the
// session.
type InputReader interface {
	ReadLine() (string, error)
}

// TurnPrinter receives the streamed tokens of one model response. Finish
// blocks until everything handed to Print has been written.
type TurnPrinter interface {
	Print(token string)
	Finish()
}

// Options configure a session. Input and Config are required; WorkDir
// defaults to the current directory.
type Options struct {
	WorkDir      string
	Paths        []string
	ExcludePaths []string
	Diff         string
	PRDiff       string
	NoCodeMap    bool

	Config *config.Config

	Input   InputReader
	Confirm filemanager.Confirmer // nil approves everything
	Out     io.Writer             // defaults to os.Stdout

	// NewPrinter, when set, is called lazily on the first token of each
	// response; the printer is finished before the lines that follow it.
	NewPrinter func() TurnPrinter

	// Client overrides the model client, for programmatic use and tests.
	Client conversation.Streamer

	// LogDir receives the session and transcript logs; empty disables both.
	LogDir string

	// Interrupts delivers SIGINT. The first signal during a turn cancels
	// it; a signal with no turn in flight ends the session.
	Interrupts <-chan os.Signal
}

// Session owns one interactive editing session against a git repository.
type Session struct {
	id       string
	opts     Options
	cfg      *config.Config
	repo     *gitops.Repo
	history  *history.History
	files    *filemanager.Manager
	context  *codecontext.Context
	conv     *conversation.Conversation
	services *commands.Services
	confirm  filemanager.Confirmer
	costs    *llm.CostTracker
	out      io.Writer
	printer  TurnPrinter
	warnings []string
	started  bool
	log      *zap.Logger
	closers  []func() error
}

// New builds a session rooted at the git repository containing
// opts.WorkDir. Warnings gathered while building the diff and code context
// are printed when Run starts.
func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("session requires a config")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workDir = wd
	}

	s := &Session{id: uuid.NewString(), opts: opts, out: opts.Out}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	repo, err := gitops.Discover(workDir)
	if err != nil {
		return nil, err
	}
	s.repo = repo
	s.cfg = opts.Config

	parser, err := parsers.ForFormat(s.cfg.Format)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logging.NewSessionLogger(opts.LogDir, s.id, true)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	s.log = log
	s.closers = append(s.closers, closeLog)
	transcript, closeTranscript, err := logging.NewSessionLogger(opts.LogDir, s.id+"_transcript", false)
	if err != nil {
		return nil, fmt.Errorf("opening transcript log: %w", err)
	}
	s.closers = append(s.closers, closeTranscript)

	s.history = history.New(log)
	s.files = filemanager.New(repo.Root(), s.history, log)

	diff, diffWarnings := diffcontext.New(repo, opts.Diff, opts.PRDiff)
	s.warnings = append(s.warnings, diffWarnings...)

	codeContext, contextWarnings := codecontext.New(codecontext.Deps{
		Config:    s.cfg,
		Repo:      repo,
		Files:     s.files,
		Diff:      diff,
		Extractor: codemap.NewExtractor(),
		Log:       log,
	}, codecontext.Settings{
		Paths:        opts.Paths,
		ExcludePaths: opts.ExcludePaths,
		NoCodeMap:    opts.NoCodeMap,
		LineNumbers:  parser.ProvideLineNumbers(),
	})
	s.context = codeContext
	s.warnings = append(s.warnings, contextWarnings...)

	client := opts.Client
	if client == nil {
		c, err := llm.NewClient(llm.ClientConfig{Model: s.cfg.Model})
		if err != nil {
			return nil, fmt.Errorf("creating model client: %w", err)
		}
		client = c
	}

	s.costs = llm.NewCostTracker(log)
	conv, err := conversation.New(conversation.Deps{
		Client:       client,
		Context:      codeContext,
		Parser:       parser,
		Config:       s.cfg,
		Costs:        s.costs,
		Buffers:      s.files,
		GitRoot:      repo.Root(),
		Out:          s.out,
		Printer:      s.printToken,
		FlushPrinter: s.flushPrinter,
		Log:          log,
		Transcript:   transcript,
	})
	if err != nil {
		return nil, err
	}
	s.conv = conv

	s.confirm = opts.Confirm
	if s.confirm == nil {
		s.confirm = filemanager.ApproveAll{}
	}

	s.services = &commands.Services{
		Context:      codeContext,
		Conversation: conv,
		History:      s.history,
		Repo:         repo,
		Config:       s.cfg,
		Out:          s.out,
	}

	log.Info("session started",
		zap.String("session_id", s.id),
		zap.String("git_root", repo.Root()),
		zap.String("model", s.cfg.Model),
	)
	ok = true
	return s, nil
}

// ID returns the session id, which also names its log files.
func (s *Session) ID() string { return s.id }

// RepoFiles lists the repository's tracked and untracked files relative to
// its root, for input completion.
func (s *Session) RepoFiles() []string {
	files, err := s.repo.ListFiles()
	if err != nil {
		return nil
	}
	return files
}

// Close releases the session's log files.
func (s *Session) Close() error {
	var errs error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, s.closers[i]())
	}
	s.closers = nil
	return errs
}

// start runs the once-per-session checks: the model must be reachable and
// the included files must fit the context window.
func (s *Session) start(ctx context.Context) error {
	if s.started {
		return nil
	}
	if err := s.conv.DisplayTokenCount(ctx); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Run drives the interactive loop until the input source is exhausted, a
// startup check fails, or an interrupt arrives with no turn in flight.
// Errors inside a turn are reported and the loop continues.
func (s *Session) Run(ctx context.Context) error {
	if s.opts.Input == nil {
		return errors.New("session requires an input source")
	}
	for _, w := range s.warnings {
		warnColor.Fprintln(s.out, w)
	}
	for _, line := range s.context.DisplayContext() {
		fmt.Fprintln(s.out, line)
	}
	if err := s.start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.interrupted() {
			fmt.Fprintln(s.out)
			return nil
		}
		inputColor.Fprintln(s.out, "What can I do for you?")
		line, err := s.opts.Input.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if err := commands.Dispatch(s.services, line); err != nil {
				errorColor.Fprintln(s.out, err)
			}
			continue
		}
		s.runTurn(ctx, line)
	}
}

func (s *Session) interrupted() bool {
	if s.opts.Interrupts == nil {
		return false
	}
	select {
	case <-s.opts.Interrupts:
		return true
	default:
		return false
	}
}

// runTurn runs one conversation turn. An interrupt cancels the turn's
// context; the truncated response is kept and the loop continues.
func (s *Session) runTurn(parent context.Context, prompt string) {
	ctx, cancel := context.WithCancel(parent)
	stop := make(chan struct{})
	if s.opts.Interrupts != nil {
		go func() {
			select {
			case <-s.opts.Interrupts:
				cancel()
			case <-stop:
			}
		}()
	}
	defer func() {
		close(stop)
		cancel()
	}()

	s.conv.AddUserMessage(prompt)
	edits, err := s.conv.GetModelResponse(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(s.out)
		return
	case err != nil:
		s.log.Error("turn failed", zap.Error(err))
		errorColor.Fprintln(s.out, err)
		return
	}
	if len(edits) == 0 {
		return
	}

	s.previewEdits(edits)
	if !s.confirm.Confirm("Apply these changes?", false) {
		warnColor.Fprintln(s.out, "Not applying changes.")
		return
	}
	s.applyEdits(edits)
}

func (s *Session) previewEdits(edits []*types.FileEdit) {
	for _, edit := range edits {
		lines, _ := s.files.StoredLines(edit.FilePath)
		fmt.Fprintln(s.out, display.RenderEdit(edit, lines, s.rel(edit.FilePath), s.rel(edit.RenameTarget)))
	}
}

func (s *Session) applyEdits(edits []*types.FileEdit) {
	result, err := s.writeEdits(edits)
	if err != nil {
		errorColor.Fprintln(s.out, err)
		return
	}
	for _, w := range result.Warnings {
		warnColor.Fprintln(s.out, w)
	}
	okColor.Fprintln(s.out, "Changes applied.")
}

// writeEdits applies edits through the file manager and keeps the context
// in step with what landed on disk.
func (s *Session) writeEdits(edits []*types.FileEdit) (*filemanager.WriteResult, error) {
	permitted := make(map[string]bool)
	for _, path := range s.context.IncludedPaths() {
		permitted[path] = true
	}
	result, err := s.files.WriteChanges(edits, permitted, s.confirm)
	if err != nil {
		return nil, err
	}
	for _, outcome := range result.Outcomes {
		resolved := display.RenderResolutions(
			s.rel(outcome.Path), len(outcome.Merges), len(outcome.Collisions))
		if resolved != "" {
			result.Warnings = append(result.Warnings, resolved)
		}
		switch {
		case outcome.Deleted:
			s.context.ExcludeFile(outcome.Path)
		case outcome.RenamedFrom != "":
			s.context.ExcludeFile(outcome.RenamedFrom)
			s.context.IncludeFile(outcome.Path)
		case outcome.Created:
			s.context.IncludeFile(outcome.Path)
		}
	}
	return result, nil
}

// TurnResult reports what one scripted turn changed.
type TurnResult struct {
	ModifiedFiles []string
	ParseErrors   []string
	Warnings      []string
}

// Execute runs a single turn outside the interactive loop: the prompt is
// sent, and any edits in the response are applied through the session's
// confirmer without a preview. Startup checks run before the first turn.
func (s *Session) Execute(ctx context.Context, prompt string) (*TurnResult, error) {
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	s.conv.AddUserMessage(prompt)
	edits, err := s.conv.GetModelResponse(ctx)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{ParseErrors: s.conv.ParseErrors()}
	if len(edits) == 0 {
		return result, nil
	}
	written, err := s.writeEdits(edits)
	if err != nil {
		return result, err
	}
	result.Warnings = written.Warnings
	for _, outcome := range written.Outcomes {
		result.ModifiedFiles = append(result.ModifiedFiles, s.rel(outcome.Path))
	}
	return result, nil
}

// Usage reports the tokens and dollars the session has consumed.
func (s *Session) Usage() (tokens int, cost float64) {
	return s.costs.TotalTokens(), s.costs.TotalCost()
}

// rel shortens an absolute path for display.
func (s *Session) rel(path string) string {
	if path == "" {
		return ""
	}
	if r, err := filepath.Rel(s.repo.Root(), path); err == nil {
		return r
	}
	return path
}

func (s *Session) printToken(token string) {
	if s.printer == nil && s.opts.NewPrinter != nil {
		s.printer = s.opts.NewPrinter()
	}
	if s.printer == nil {
		_, _ = io.WriteString(s.out, token)
		return
	}
	s.printer.Print(token)
}

func (s *Session) flushPrinter() {
	if s.printer == nil {
		return
	}
	s.printer.Finish()
	s.printer = nil
}
