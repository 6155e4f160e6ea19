// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package mentat is the public interface for scripted use of mentat's
// editing loop: one prompt in, the model's edits applied to the repository
// without prompting, a result out.
package mentat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sycomix/mentat/internal/config"
	"github.com/sycomix/mentat/internal/conversation"
	"github.com/sycomix/mentat/internal/session"
	"github.com/sycomix/mentat/pkg/types"
)

// ErrInvalidOptions is returned by New when the options cannot form a
// working client.
var ErrInvalidOptions = errors.New("invalid options")

// Options configure a scripted client.
type Options struct {
	WorkDir      string   // Directory inside the target repository (required)
	Paths        []string // Files and directories to include in context
	ExcludePaths []string // Paths to exclude from context
	Diff         string   // Treeish to diff context files against
	PRDiff       string   // Treeish to diff against its merge base with HEAD
	NoCodeMap    bool     // Disable the code map

	Model          string // Chat model (defaults to the tool's default model)
	Format         string // Edit format: "block" or "unified-diff" (default "block")
	MaximumContext int    // Maximum context tokens; 0 derives it from the model

	Out    io.Writer // Receives progress output; nil discards it
	LogDir string    // Session log directory; empty disables logging

	// Client overrides the model client, for tests.
	Client conversation.Streamer
}

// Usage totals what the client's model calls have consumed.
type Usage struct {
	TotalTokens int
	TotalCost   float64
}

// Result holds the outcome of one Run invocation.
type Result struct {
	ModifiedFiles []string // Repository-relative paths of files changed
	ParseErrors   []string // Response blocks that could not become edits
	Warnings      []string // Edits dropped while applying
	Usage         Usage    // Cumulative tokens and cost for the client
}

// Client runs scripted editing turns against one repository.
type Client struct {
	session *session.Session
}

// New validates the options and builds a client rooted at the repository
// containing WorkDir. Edits apply without confirmation prompts.
func New(opts Options) (*Client, error) {
	if err := validateOptions(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	model := opts.Model
	if model == "" {
		model = config.DefaultModel
	}
	format := types.FormatBlock
	if opts.Format != "" {
		format = types.PatchFormat(opts.Format)
	}
	cfg := &config.Config{
		Model:              model,
		Format:             format,
		MaximumContext:     opts.MaximumContext,
		InputStyle:         "plain",
		UseEmbeddedPrompts: true,
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	sess, err := session.New(session.Options{
		WorkDir:      opts.WorkDir,
		Paths:        opts.Paths,
		ExcludePaths: opts.ExcludePaths,
		Diff:         opts.Diff,
		PRDiff:       opts.PRDiff,
		NoCodeMap:    opts.NoCodeMap,
		Config:       cfg,
		Out:          out,
		Client:       opts.Client,
		LogDir:       opts.LogDir,
	})
	if err != nil {
		return nil, err
	}
	return &Client{session: sess}, nil
}

// Run sends one prompt and applies every edit the response carries. The
// result reports cumulative usage even when the turn fails.
func (c *Client) Run(ctx context.Context, prompt string) (*Result, error) {
	turn, err := c.session.Execute(ctx, prompt)
	tokens, cost := c.session.Usage()
	result := &Result{Usage: Usage{TotalTokens: tokens, TotalCost: cost}}
	if turn != nil {
		result.ModifiedFiles = turn.ModifiedFiles
		result.ParseErrors = turn.ParseErrors
		result.Warnings = turn.Warnings
	}
	return result, err
}

// Close releases the client's log files.
func (c *Client) Close() error {
	return c.session.Close()
}

// validateOptions checks that required fields are present and usable.
func validateOptions(opts Options) error {
	if opts.WorkDir == "" {
		return fmt.Errorf("WorkDir is required")
	}
	if info, err := os.Stat(opts.WorkDir); err != nil || !info.IsDir() {
		return fmt.Errorf("WorkDir %q does not exist or is not a directory", opts.WorkDir)
	}
	if opts.Format != "" && !types.PatchFormat(opts.Format).Valid() {
		return fmt.Errorf("unknown format %q", opts.Format)
	}
	return nil
}
