// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package llm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/sycomix/mentat/pkg/types"
)

// fallbackEncoding counts tokens for models tiktoken does not know.
const fallbackEncoding = "cl100k_base"

// Message framing overhead from the OpenAI token counting cookbook: every
// message costs a fixed frame plus its role and content tokens, and the
// reply is primed with an assistant frame.
const (
	tokensPerMessage = 3
	replyPrimeTokens = 3
)

// CountTokens returns the number of model tokens in text. Unknown models
// fall back to the gpt-4 encoding; if no encoder can be loaded at all the
// count is estimated at four characters per token.
func CountTokens(text, model string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// PromptTokens returns the token count for a full message array, including
// the per-message framing overhead the API adds around each content block.
func PromptTokens(messages []types.Message, model string) int {
	total := replyPrimeTokens
	for _, m := range messages {
		total += tokensPerMessage
		total += CountTokens(string(m.Role), model)
		total += CountTokens(m.Content, model)
	}
	return total
}

// contextSizes maps models to their context window in tokens.
var contextSizes = map[string]int{
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-4-turbo":       128000,
	"gpt-4-32k":         32768,
	"gpt-4":             8192,
	"gpt-3.5-turbo-16k": 16385,
	"gpt-3.5-turbo":     4097,
	"gpt-3.5":           4097,
}

// modelPrices holds dollars per 1000 prompt and sampled tokens.
var modelPrices = map[string][2]float64{
	"gpt-4o":            {0.0025, 0.01},
	"gpt-4o-mini":       {0.00015, 0.0006},
	"gpt-4-turbo":       {0.01, 0.03},
	"gpt-4-32k":         {0.06, 0.12},
	"gpt-4":             {0.03, 0.06},
	"gpt-3.5-turbo-16k": {0.003, 0.004},
	"gpt-3.5-turbo":     {0.0015, 0.002},
	"gpt-3.5":           {0.0015, 0.002},
}

// longestPrefix returns the longest table key that prefixes model, so dated
// releases like gpt-4o-2024-08-06 resolve to their family entry.
func longestPrefix[V any](table map[string]V, model string) (string, bool) {
	if _, ok := table[model]; ok {
		return model, true
	}
	best := ""
	for name := range table {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	return best, best != ""
}

// ModelContextSize returns the context window for a model. ok is false for
// models outside the table.
func ModelContextSize(model string) (int, bool) {
	name, ok := longestPrefix(contextSizes, model)
	if !ok {
		return 0, false
	}
	return contextSizes[name], true
}

// ModelPricePer1000Tokens returns the prompt and sampled token prices for a
// model. ok is false when the price is unknown.
func ModelPricePer1000Tokens(model string) (prompt, sampled float64, ok bool) {
	name, found := longestPrefix(modelPrices, model)
	if !found {
		return 0, 0, false
	}
	price := modelPrices[name]
	return price[0], price[1], true
}

// CostTracker accumulates token usage and dollar cost across a session.
type CostTracker struct {
	log *zap.Logger

	mu          sync.Mutex
	totalTokens int
	totalCost   float64
}

// NewCostTracker creates a tracker logging call stats through log.
func NewCostTracker(log *zap.Logger) *CostTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &CostTracker{log: log}
}

// RecordCall adds one model call to the running totals and returns the
// speed and cost display line for it. Calls to models with unknown pricing
// report speed only.
func (t *CostTracker) RecordCall(promptTokens, sampledTokens int, model string, callTime time.Duration) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalTokens += promptTokens + sampledTokens

	var tokensPerSecond float64
	if seconds := callTime.Seconds(); seconds > 0 {
		tokensPerSecond = float64(sampledTokens) / seconds
	}

	line := fmt.Sprintf("Speed: %.2f tkns/s", tokensPerSecond)
	if promptPrice, sampledPrice, ok := ModelPricePer1000Tokens(model); ok {
		callCost := float64(promptTokens)/1000*promptPrice + float64(sampledTokens)/1000*sampledPrice
		t.totalCost += callCost
		line = fmt.Sprintf("Speed: %.2f tkns/s | Cost: $%.2f", tokensPerSecond, callCost)
	}

	t.log.Info("api call stats",
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("sampled_tokens", sampledTokens),
		zap.String("model", model),
		zap.Duration("call_time", callTime))
	return line
}

// TotalTokens returns the tokens consumed across all recorded calls.
func (t *CostTracker) TotalTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalTokens
}

// TotalCost returns the accumulated dollar cost across all recorded calls.
func (t *CostTracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// SessionCostLine returns the display line for the session total.
func (t *CostTracker) SessionCostLine() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Total session cost: $%.2f", t.totalCost)
}
