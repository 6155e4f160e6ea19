// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package types

// MessageRole identifies the sender of a message in the model conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message represents a single message in the model conversation.
type Message struct {
	Role    MessageRole // Who sent the message
	Content string      // Message text
}

// TokenUsage tracks token consumption for a single model call.
type TokenUsage struct {
	InputTokens  int // Tokens in the prompt
	OutputTokens int // Tokens in the response
}

// Total returns the sum of input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another call's usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// FileContent represents a file's content for inclusion in a prompt.
type FileContent struct {
	Path    string // File path relative to the repository root
	Content string // File text content
}

// StreamResponse holds the result of a streaming model call.
type StreamResponse struct {
	FullText string     // Accumulated response text
	Usage    TokenUsage // Token counts from API metadata
	Retries  int        // Retries performed due to rate limits
	Err      error      // Non-nil when the call failed
}
