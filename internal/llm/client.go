// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package llm wraps the OpenAI chat completions API for streaming model
// access. The client retries rate limited calls with exponential backoff and
// classifies API failures; token counting, context window sizes, and cost
// accounting live alongside it so every layer prices a prompt the same way.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/pagination"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/sycomix/mentat/pkg/types"
)

const (
	defaultTimeout   = 300 * time.Second
	maxRetryAttempts = 3
	baseRetryDelay   = 1 * time.Second

	defaultMaxTokens    = 4096
	responseTemperature = 0.5
)

// ErrLLMFailure indicates the model call failed (network, auth, rate limit).
var ErrLLMFailure = errors.New("LLM failure")

// ErrInvalidRequest marks request errors the caller must fix before
// retrying, e.g. a prompt over the model's context window.
var ErrInvalidRequest = fmt.Errorf("%w: invalid request", ErrLLMFailure)

// ErrRateLimited marks provider throttling.
var ErrRateLimited = fmt.Errorf("%w: rate limited", ErrLLMFailure)

// ClientConfig configures the OpenAI client.
type ClientConfig struct {
	Model     string        // Chat model name (required)
	APIKey    string        // API key; falls back to OPENAI_API_KEY
	BaseURL   string        // Alternate API base; falls back to OPENAI_API_BASE
	Timeout   time.Duration // Per-call timeout covering the whole stream (default 300s)
	MaxTokens int           // Max tokens for the response (default 4096)
}

// CompletionsAPI abstracts the chat completions streaming call for testing.
type CompletionsAPI interface {
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// ModelsAPI abstracts the model listing call for testing.
type ModelsAPI interface {
	List(ctx context.Context, opts ...option.RequestOption) (*pagination.Page[openai.Model], error)
}

// Client wraps the OpenAI SDK for streaming chat access.
type Client struct {
	api        CompletionsAPI
	models     ModelsAPI
	model      string
	timeout    time.Duration
	maxTokens  int
	retryDelay time.Duration
	usage      types.TokenUsage // Cumulative usage across calls
}

// NewClient creates an OpenAI client from the given configuration. The API
// key comes from the config or the OPENAI_API_KEY environment variable, and
// OPENAI_API_BASE redirects calls to any compatible endpoint.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrLLMFailure)
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf(
			"%w: no OpenAI api key detected; export OPENAI_API_KEY or set it in the config",
			ErrLLMFailure)
	}

	base := cfg.BaseURL
	if base == "" {
		base = os.Getenv("OPENAI_API_BASE")
	}

	// Rate limit retries happen in sendWithRetry, so the SDK's own retry
	// loop stays off.
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	oa := openai.NewClient(opts...)

	client := newClientWithDefaults(cfg)
	client.api = &oa.Chat.Completions
	client.models = &oa.Models
	return client, nil
}

// NewClientWithAPI creates a client with pre-configured API implementations.
// Used for testing with mock clients.
func NewClientWithAPI(api CompletionsAPI, models ModelsAPI, cfg ClientConfig) *Client {
	client := newClientWithDefaults(cfg)
	client.api = api
	client.models = models
	return client
}

func newClientWithDefaults(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		model:      cfg.Model,
		timeout:    timeout,
		maxTokens:  maxTokens,
		retryDelay: baseRetryDelay,
	}
}

// Model returns the configured chat model name.
func (c *Client) Model() string {
	return c.model
}

// SendPrompt sends the conversation to the model and returns a channel that
// yields response tokens as they arrive plus a result channel that delivers
// the final StreamResponse after streaming completes. A failed call closes
// the token channel and carries the classified error in the response.
func (c *Client) SendPrompt(ctx context.Context, messages []types.Message) (<-chan string, <-chan *types.StreamResponse) {
	tokenCh := make(chan string, 64)
	resultCh := make(chan *types.StreamResponse, 1)

	go func() {
		defer close(resultCh)

		response, err := c.sendWithRetry(ctx, c.buildParams(messages), tokenCh)
		if err != nil {
			close(tokenCh)
			resultCh <- &types.StreamResponse{Err: err}
			return
		}

		c.usage.Add(response.Usage)
		resultCh <- response
	}()

	return tokenCh, resultCh
}

// ModelAvailable reports whether the configured model appears in the API's
// model listing.
func (c *Client) ModelAvailable(ctx context.Context) (bool, error) {
	page, err := c.models.List(ctx)
	if err != nil {
		return false, c.classifyError(err)
	}
	for _, m := range page.Data {
		if m.ID == c.model {
			return true, nil
		}
	}
	return false, nil
}

// CumulativeUsage returns the total token usage across all calls.
func (c *Client) CumulativeUsage() types.TokenUsage {
	return c.usage
}

// sendWithRetry issues the streaming call with exponential backoff for rate
// limit and server errors. Only connect failures retry; once tokens start
// flowing the stream is consumed to the end.
func (c *Client) sendWithRetry(ctx context.Context, params openai.ChatCompletionNewParams, tokenCh chan<- string) (*types.StreamResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: context cancelled during retry: %v", ErrLLMFailure, ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)

		stream := c.api.NewStreaming(callCtx, params)
		if err := stream.Err(); err != nil {
			cancel()
			if retryable(err) {
				lastErr = err
				continue
			}
			return nil, c.classifyError(err)
		}

		response := consumeStream(callCtx, stream, tokenCh)
		if response.Err != nil {
			response.Err = c.classifyError(response.Err)
		}
		response.Retries = attempt
		cancel()
		return response, nil
	}

	return nil, fmt.Errorf("%w after %d retries: %v", ErrRateLimited, maxRetryAttempts, lastErr)
}

// retryable reports whether err is a rate limit or server-side failure worth
// another attempt.
func retryable(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusTooManyRequests ||
			apierr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// classifyError wraps OpenAI errors into ErrLLMFailure with descriptive
// messages.
func (c *Client) classifyError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: authentication failed, check OPENAI_API_KEY: %v", ErrLLMFailure, err)
		case apierr.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: model not found: %s", ErrLLMFailure, c.model)
		case apierr.Code == "context_length_exceeded":
			return fmt.Errorf("%w: prompt exceeds the context window of %s: %v", ErrInvalidRequest, c.model, err)
		case apierr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apierr.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out after %s", ErrLLMFailure, c.timeout)
	}

	return fmt.Errorf("%w: %v", ErrLLMFailure, err)
}

// buildParams converts conversation messages into the SDK request shape.
func (c *Client) buildParams(messages []types.Message) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			converted = append(converted, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(m.Content))
		default:
			converted = append(converted, openai.UserMessage(m.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            converted,
		Temperature:         openai.Float(responseTemperature),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
}
