// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/sycomix/mentat/pkg/types"
)

// consumeStream reads chat completion chunks, sends text deltas through the
// provided channel, and accumulates the full response. After a clean finish
// one final "\n" token is appended: the patch dialects parse line by line
// and models usually stop without terminating the last one. The channel is
// closed when streaming completes or the context is cancelled.
func consumeStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], tokenCh chan<- string) *types.StreamResponse {
	defer close(tokenCh)
	defer stream.Close()

	var text strings.Builder
	response := &types.StreamResponse{}

	for stream.Next() {
		chunk := stream.Current()

		// Usage arrives in a trailing chunk with no choices.
		if chunk.Usage.TotalTokens > 0 {
			response.Usage.InputTokens = int(chunk.Usage.PromptTokens)
			response.Usage.OutputTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		text.WriteString(delta)
		select {
		case tokenCh <- delta:
		case <-ctx.Done():
			response.FullText = text.String()
			return response
		}
	}

	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		response.Err = err
	} else if ctx.Err() == nil {
		select {
		case tokenCh <- "\n":
			text.WriteString("\n")
		case <-ctx.Done():
		}
	}

	response.FullText = text.String()
	return response
}
