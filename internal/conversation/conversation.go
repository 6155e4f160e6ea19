// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package conversation holds the message history exchanged with the model
// and runs one request/response turn: context-size guard, code message
// refresh, streaming, parsing, and cost accounting.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/sycomix/mentat/internal/codecontext"
	"github.com/sycomix/mentat/internal/config"
	"github.com/sycomix/mentat/internal/display"
	"github.com/sycomix/mentat/internal/llm"
	"github.com/sycomix/mentat/internal/parsers"
	"github.com/sycomix/mentat/pkg/types"
)

// responseBuffer is the token headroom reserved for the model's reply when
// sizing the code message and when warning about tight context.
const responseBuffer = 1000

var (
	warnColor  = color.New(color.FgYellow)
	alertColor = color.New(color.FgRed)
	countColor = color.New(color.FgCyan)
	errColor   = color.New(color.FgRed)
)

// Streamer is the slice of the model client a conversation drives.
type Streamer interface {
	SendPrompt(ctx context.Context, messages []types.Message) (<-chan string, <-chan *types.StreamResponse)
	ModelAvailable(ctx context.Context) (bool, error)
}

// Deps wires the conversation's collaborators.
type Deps struct {
	Client  Streamer
	Context *codecontext.Context
	Parser  parsers.Parser
	Config  *config.Config
	Costs   *llm.CostTracker
	Buffers parsers.BufferSource
	GitRoot string

	// Out receives user-facing lines; Printer receives raw streamed tokens
	// and falls back to Out when nil. FlushPrinter, when set, blocks until
	// the printer has drained, so paced output lands before the lines that
	// follow the response.
	Out          io.Writer
	Printer      func(token string)
	FlushPrinter func()

	Log        *zap.Logger
	Transcript *zap.Logger
}

// Conversation accumulates the message history for one session. Not safe
// for concurrent use.
type Conversation struct {
	deps        Deps
	model       string
	messages    []types.Message
	maxTokens   int
	parseErrors []string
}

// New seeds a conversation with the active parser's system prompt.
func New(deps Deps) (*Conversation, error) {
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Transcript == nil {
		deps.Transcript = zap.NewNop()
	}

	c := &Conversation{deps: deps, model: deps.Config.Model}
	prompt, err := systemPrompt(deps.Parser, deps.Config)
	if err != nil {
		return nil, fmt.Errorf("loading system prompt: %w", err)
	}
	c.AddSystemMessage(prompt)
	return c, nil
}

// systemPrompt returns the parser's prompt text. When use-embedded-prompts is
// off, a prompt file in the user config directory overrides the embedded one;
// a missing or unreadable override falls back silently.
func systemPrompt(parser parsers.Parser, cfg *config.Config) (string, error) {
	if !cfg.UseEmbeddedPrompts {
		if dir, err := config.UserDir(); err == nil {
			name := strings.ReplaceAll(string(parser.Format()), "-", "_") + "_prompt.txt"
			if data, err := os.ReadFile(filepath.Join(dir, "prompts", name)); err == nil {
				return string(data), nil
			}
		}
	}
	return parser.SystemPrompt()
}

// AddSystemMessage appends a system message to the history.
func (c *Conversation) AddSystemMessage(content string) {
	c.messages = append(c.messages, types.Message{Role: types.RoleSystem, Content: content})
}

// AddUserMessage appends a user message to the history.
func (c *Conversation) AddUserMessage(content string) {
	c.messages = append(c.messages, types.Message{Role: types.RoleUser, Content: content})
}

// AddModelMessage appends an assistant message to the history.
func (c *Conversation) AddModelMessage(content string) {
	c.messages = append(c.messages, types.Message{Role: types.RoleAssistant, Content: content})
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []types.Message {
	messages := make([]types.Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}

// ParseErrors describes the discarded blocks of the most recent response.
func (c *Conversation) ParseErrors() []string {
	return c.parseErrors
}

// Clear drops every message except the system ones.
func (c *Conversation) Clear() {
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.Role == types.RoleSystem {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}

// DisplayTokenCount verifies the model can host the included files before
// the first turn: it prints the prompt-plus-files token count against the
// usable context size, warns when they nearly fill it, and errors when
// they exceed it or the size is unknown. The usable size becomes the
// budget later turns size their code message against.
func (c *Conversation) DisplayTokenCount(ctx context.Context) error {
	available, err := c.deps.Client.ModelAvailable(ctx)
	if err != nil {
		return err
	}
	if !available {
		return fmt.Errorf(
			"Model %s is not available. Please try again with a different model.", c.model)
	}

	if !strings.Contains(c.model, "gpt-4") {
		c.println(warnColor.Sprint(
			"Warning: Mentat has only been tested on GPT-4. You may experience issues " +
				"with quality. This model may not be able to respond in mentat's edit format."))
		if !strings.Contains(c.model, "gpt-3.5") {
			c.println(warnColor.Sprint(
				"Warning: Mentat does not know how to calculate costs or context size " +
					"for this model."))
		}
	}

	contextSize, known := llm.ModelContextSize(c.model)
	if maximum := c.deps.Config.MaximumContext; maximum > 0 {
		if known {
			contextSize = min(contextSize, maximum)
		} else {
			contextSize = maximum
		}
		known = true
	}

	codeMessage, err := c.deps.Context.CodeMessage(ctx, c.model, 0)
	if err != nil {
		return err
	}
	tokens := llm.CountTokens(codeMessage, c.model) +
		llm.CountTokens(c.messages[0].Content, c.model)

	if !known {
		return fmt.Errorf(
			"Context size for %s is not known. Please set maximum-context in %s.",
			c.model, config.UserConfigPath())
	}
	c.maxTokens = contextSize

	switch {
	case tokens > contextSize:
		return fmt.Errorf(
			"Included files already exceed token limit (%d / %d). Please try running "+
				"again with a reduced number of files.", tokens, contextSize)
	case tokens+responseBuffer > contextSize:
		c.println(alertColor.Sprintf(
			"Warning: Included files are close to token limit (%d / %d), you may not "+
				"be able to have a long conversation.", tokens, contextSize))
	default:
		c.println(countColor.Sprintf(
			"Prompt and included files token count: %d / %d", tokens, contextSize))
	}
	return nil
}

// GetModelResponse runs one turn: the code message is rebuilt to fit the
// tokens left after the history and the response buffer, the reply is
// streamed to the printer, parsed, and recorded. Parse failures of single
// blocks are displayed and the surviving edits returned.
func (c *Conversation) GetModelResponse(ctx context.Context) ([]*types.FileEdit, error) {
	messages := c.Messages()

	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	historyTokens := llm.CountTokens(strings.Join(contents, "\n"), c.model)

	codeMessage, err := c.deps.Context.CodeMessage(
		ctx, c.model, c.maxTokens-historyTokens-responseBuffer)
	if err != nil {
		return nil, err
	}
	messages = append(messages, types.Message{Role: types.RoleSystem, Content: codeMessage})

	c.println("")
	for _, line := range c.deps.Context.DisplayFeatures() {
		c.println(line)
	}

	promptTokens := llm.PromptTokens(messages, c.model)

	c.println("Streaming... use control-c to interrupt the model at any point\n")
	start := time.Now()
	tokenCh, resultCh := c.deps.Client.SendPrompt(ctx, messages)
	for token := range tokenCh {
		c.printToken(token)
	}
	response := <-resultCh
	elapsed := time.Since(start)
	if c.deps.FlushPrinter != nil {
		c.deps.FlushPrinter()
	}

	if response == nil {
		return nil, fmt.Errorf("model returned no response")
	}
	if response.Err != nil {
		switch {
		case errors.Is(response.Err, llm.ErrInvalidRequest):
			return nil, fmt.Errorf(
				"Something went wrong - invalid request to OpenAI API. OpenAI returned:\n%v",
				response.Err)
		case errors.Is(response.Err, llm.ErrRateLimited):
			return nil, fmt.Errorf("OpenAI gave a rate limit error:\n%v", response.Err)
		default:
			return nil, response.Err
		}
	}

	result := c.deps.Parser.ParseResponse(response.FullText, c.deps.GitRoot, c.deps.Buffers)
	c.parseErrors = nil
	for _, parseErr := range result.Errors {
		c.parseErrors = append(c.parseErrors, parseErr.Error())
		c.println(c.renderParseError(parseErr))
	}

	c.println(c.deps.Costs.RecordCall(
		promptTokens, llm.CountTokens(response.FullText, c.model), c.model, elapsed))

	messages = append(messages, types.Message{Role: types.RoleAssistant, Content: response.FullText})
	c.deps.Transcript.Info("transcript", zap.Any("messages", messages))

	c.AddModelMessage(response.FullText)
	return result.FileEdits, nil
}

// renderParseError explains one discarded block. Anchor failures get the
// closest-region diagnostic; everything else prints its message.
func (c *Conversation) renderParseError(err error) string {
	var anchorErr *parsers.AnchorNotFoundError
	if errors.As(err, &anchorErr) && c.deps.Buffers != nil {
		if buffer, ok := c.deps.Buffers.Lines(anchorErr.File); ok {
			return display.RenderAnchorFailure(
				c.displayPath(anchorErr.File), anchorErr.Search, buffer)
		}
	}
	return errColor.Sprint(err.Error())
}

func (c *Conversation) displayPath(path string) string {
	if c.deps.GitRoot == "" {
		return path
	}
	rel, err := filepath.Rel(c.deps.GitRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (c *Conversation) println(line string) {
	fmt.Fprintln(c.deps.Out, line)
}

func (c *Conversation) printToken(token string) {
	if c.deps.Printer != nil {
		c.deps.Printer(token)
		return
	}
	io.WriteString(c.deps.Out, token)
}
