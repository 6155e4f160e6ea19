// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/pagination"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sycomix/mentat/pkg/types"
)

// mockDecoder implements ssestream.Decoder over a fixed event list.
type mockDecoder struct {
	events []ssestream.Event
	idx    int
	err    error
}

func (d *mockDecoder) Next() bool {
	if d.idx >= len(d.events) {
		return false
	}
	d.idx++
	return true
}

func (d *mockDecoder) Event() ssestream.Event { return d.events[d.idx-1] }
func (d *mockDecoder) Close() error           { return nil }
func (d *mockDecoder) Err() error             { return d.err }

func deltaEvent(t *testing.T, content string) ssestream.Event {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": content}},
		},
	})
	require.NoError(t, err)
	return ssestream.Event{Data: data}
}

func usageEvent(t *testing.T, input, output int) ssestream.Event {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"choices": []map[string]any{},
		"usage": map[string]any{
			"prompt_tokens":     input,
			"completion_tokens": output,
			"total_tokens":      input + output,
		},
	})
	require.NoError(t, err)
	return ssestream.Event{Data: data}
}

func doneEvent() ssestream.Event {
	return ssestream.Event{Data: []byte("[DONE]")}
}

func chunkStream(events ...ssestream.Event) *ssestream.Stream[openai.ChatCompletionChunk] {
	return ssestream.NewStream[openai.ChatCompletionChunk](&mockDecoder{events: events}, nil)
}

// mockCompletionsAPI fails the first failures calls with failErr, then
// streams tokens followed by a usage chunk.
type mockCompletionsAPI struct {
	t         *testing.T
	failures  int
	failErr   error
	tokens    []string
	usageIn   int
	usageOut  int
	callCount int
	lastBody  openai.ChatCompletionNewParams
}

func (m *mockCompletionsAPI) NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk] {
	m.callCount++
	m.lastBody = body
	if m.callCount <= m.failures {
		return ssestream.NewStream[openai.ChatCompletionChunk](nil, m.failErr)
	}

	events := make([]ssestream.Event, 0, len(m.tokens)+2)
	for _, token := range m.tokens {
		events = append(events, deltaEvent(m.t, token))
	}
	if m.usageIn > 0 || m.usageOut > 0 {
		events = append(events, usageEvent(m.t, m.usageIn, m.usageOut))
	}
	events = append(events, doneEvent())
	return chunkStream(events...)
}

type mockModelsAPI struct {
	ids []string
	err error
}

func (m *mockModelsAPI) List(ctx context.Context, opts ...option.RequestOption) (*pagination.Page[openai.Model], error) {
	if m.err != nil {
		return nil, m.err
	}
	page := &pagination.Page[openai.Model]{}
	for _, id := range m.ids {
		page.Data = append(page.Data, openai.Model{ID: id})
	}
	return page, nil
}

// apiError builds an API error with enough of the request populated for
// Error() to format.
func apiError(status int, code string) *openai.Error {
	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
	return &openai.Error{
		Code:       code,
		StatusCode: status,
		Request:    req,
		Response:   &http.Response{StatusCode: status, Request: req},
	}
}

func TestConsumeStream_TokensDelivered(t *testing.T) {
	stream := chunkStream(
		deltaEvent(t, "Here"),
		deltaEvent(t, " is"),
		deltaEvent(t, " the"),
		deltaEvent(t, " code"),
		usageEvent(t, 150, 42),
		doneEvent(),
	)
	tokenCh := make(chan string, 64)

	response := consumeStream(context.Background(), stream, tokenCh)

	var received []string
	for token := range tokenCh {
		received = append(received, token)
	}

	assert.Equal(t, []string{"Here", " is", " the", " code", "\n"}, received)
	assert.NoError(t, response.Err)
	assert.Equal(t, "Here is the code\n", response.FullText)
	assert.Equal(t, 150, response.Usage.InputTokens)
	assert.Equal(t, 42, response.Usage.OutputTokens)
}

func TestConsumeStream_UsageFromTrailingChunk(t *testing.T) {
	stream := chunkStream(deltaEvent(t, "hello"), usageEvent(t, 150, 42), doneEvent())
	tokenCh := make(chan string, 64)

	response := consumeStream(context.Background(), stream, tokenCh)
	for range tokenCh {
	}

	assert.Equal(t, 150, response.Usage.InputTokens)
	assert.Equal(t, 42, response.Usage.OutputTokens)
}

func TestConsumeStream_ContextCancellation(t *testing.T) {
	stream := chunkStream(
		deltaEvent(t, "partial"),
		deltaEvent(t, " content"),
		deltaEvent(t, " not"),
		deltaEvent(t, " received"),
	)
	tokenCh := make(chan string)

	ctx, cancel := context.WithCancel(context.Background())

	var response *types.StreamResponse
	done := make(chan struct{})
	go func() {
		response = consumeStream(ctx, stream, tokenCh)
		close(done)
	}()

	received := []string{<-tokenCh, <-tokenCh}
	cancel()
	<-done

	assert.Equal(t, []string{"partial", " content"}, received)
	assert.Equal(t, "partial content not", response.FullText)
	assert.NoError(t, response.Err)

	_, open := <-tokenCh
	assert.False(t, open)
}

func TestConsumeStream_MidStreamErrorReported(t *testing.T) {
	decoder := &mockDecoder{
		events: []ssestream.Event{deltaEvent(t, "partial")},
		err:    errors.New("connection reset"),
	}
	stream := ssestream.NewStream[openai.ChatCompletionChunk](decoder, nil)
	tokenCh := make(chan string, 64)

	response := consumeStream(context.Background(), stream, tokenCh)

	assert.Equal(t, "partial", response.FullText)
	assert.ErrorContains(t, response.Err, "connection reset")
}

func TestSendPrompt_StreamsTokens(t *testing.T) {
	api := &mockCompletionsAPI{
		t:        t,
		tokens:   []string{"func ", "Hello", "()"},
		usageIn:  10,
		usageOut: 3,
	}
	client := NewClientWithAPI(api, nil, ClientConfig{Model: "gpt-4"})

	tokenCh, resultCh := client.SendPrompt(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "be terse"},
		{Role: types.RoleUser, Content: "write hello"},
	})

	var received []string
	for token := range tokenCh {
		received = append(received, token)
	}
	response := <-resultCh

	assert.Equal(t, []string{"func ", "Hello", "()", "\n"}, received)
	assert.NoError(t, response.Err)
	assert.Equal(t, "func Hello()\n", response.FullText)
	assert.Equal(t, 10, response.Usage.InputTokens)
	assert.Equal(t, 3, response.Usage.OutputTokens)
	assert.Equal(t, 0, response.Retries)
	assert.Equal(t, 13, client.CumulativeUsage().Total())

	assert.Equal(t, 1, api.callCount)
	assert.Equal(t, "gpt-4", string(api.lastBody.Model))
	assert.Len(t, api.lastBody.Messages, 2)
	assert.Equal(t, 0.5, api.lastBody.Temperature.Value)
	assert.Equal(t, int64(4096), api.lastBody.MaxCompletionTokens.Value)
	assert.True(t, api.lastBody.StreamOptions.IncludeUsage.Value)
}

func TestSendPrompt_RetriesOnRateLimit(t *testing.T) {
	api := &mockCompletionsAPI{
		t:        t,
		failures: 2,
		failErr:  apiError(http.StatusTooManyRequests, "rate_limit_exceeded"),
		tokens:   []string{"ok"},
	}
	client := NewClientWithAPI(api, nil, ClientConfig{Model: "gpt-4"})
	client.retryDelay = time.Millisecond

	tokenCh, resultCh := client.SendPrompt(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	for range tokenCh {
	}
	response := <-resultCh

	assert.NoError(t, response.Err)
	assert.Equal(t, "ok\n", response.FullText)
	assert.Equal(t, 2, response.Retries)
	assert.Equal(t, 3, api.callCount)
}

func TestSendPrompt_ServerErrorRetried(t *testing.T) {
	api := &mockCompletionsAPI{
		t:        t,
		failures: 1,
		failErr:  apiError(http.StatusBadGateway, ""),
		tokens:   []string{"recovered"},
	}
	client := NewClientWithAPI(api, nil, ClientConfig{Model: "gpt-4"})
	client.retryDelay = time.Millisecond

	tokenCh, resultCh := client.SendPrompt(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	for range tokenCh {
	}
	response := <-resultCh

	assert.NoError(t, response.Err)
	assert.Equal(t, "recovered\n", response.FullText)
	assert.Equal(t, 1, response.Retries)
	assert.Equal(t, 2, api.callCount)
}

func TestSendPrompt_RateLimitExhausted(t *testing.T) {
	api := &mockCompletionsAPI{
		t:        t,
		failures: maxRetryAttempts + 1,
		failErr:  apiError(http.StatusTooManyRequests, "rate_limit_exceeded"),
	}
	client := NewClientWithAPI(api, nil, ClientConfig{Model: "gpt-4"})
	client.retryDelay = time.Millisecond

	tokenCh, resultCh := client.SendPrompt(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	response := <-resultCh

	assert.ErrorIs(t, response.Err, ErrLLMFailure)
	assert.ErrorIs(t, response.Err, ErrRateLimited)
	assert.Contains(t, response.Err.Error(), "rate limited after 3 retries")
	assert.Equal(t, maxRetryAttempts+1, api.callCount)

	_, open := <-tokenCh
	assert.False(t, open)
}

func TestSendPrompt_AuthErrorNotRetried(t *testing.T) {
	api := &mockCompletionsAPI{
		t:        t,
		failures: 1,
		failErr:  apiError(http.StatusUnauthorized, ""),
	}
	client := NewClientWithAPI(api, nil, ClientConfig{Model: "gpt-4"})

	tokenCh, resultCh := client.SendPrompt(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	response := <-resultCh

	assert.ErrorIs(t, response.Err, ErrLLMFailure)
	assert.Contains(t, response.Err.Error(), "OPENAI_API_KEY")
	assert.Equal(t, 1, api.callCount)

	_, open := <-tokenCh
	assert.False(t, open)
}

func TestNewClientWithAPI_Defaults(t *testing.T) {
	client := NewClientWithAPI(&mockCompletionsAPI{}, nil, ClientConfig{Model: "gpt-4o"})

	assert.Equal(t, "gpt-4o", client.Model())
	assert.Equal(t, defaultMaxTokens, client.maxTokens)
	assert.Equal(t, defaultTimeout, client.timeout)
	assert.Equal(t, baseRetryDelay, client.retryDelay)
}

func TestNewClientWithAPI_Overrides(t *testing.T) {
	client := NewClientWithAPI(&mockCompletionsAPI{}, nil, ClientConfig{
		Model:     "gpt-4",
		Timeout:   30 * time.Second,
		MaxTokens: 2048,
	})

	assert.Equal(t, 30*time.Second, client.timeout)
	assert.Equal(t, 2048, client.maxTokens)
}

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrLLMFailure)
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewClient(ClientConfig{Model: "gpt-4"})
	assert.ErrorIs(t, err, ErrLLMFailure)
	assert.Contains(t, err.Error(), "api key")
}

func TestNewClient_KeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	client, err := NewClient(ClientConfig{Model: "gpt-4"})
	require.NoError(t, err)
	assert.NotNil(t, client.api)
	assert.NotNil(t, client.models)
}

func TestClient_ClassifyError_AuthFailure(t *testing.T) {
	client := &Client{model: "gpt-4"}
	err := client.classifyError(apiError(http.StatusUnauthorized, ""))

	assert.ErrorIs(t, err, ErrLLMFailure)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestClient_ClassifyError_ModelNotFound(t *testing.T) {
	client := &Client{model: "nonexistent-model"}
	err := client.classifyError(apiError(http.StatusNotFound, "model_not_found"))

	assert.ErrorIs(t, err, ErrLLMFailure)
	assert.Contains(t, err.Error(), "nonexistent-model")
}

func TestClient_ClassifyError_ContextLength(t *testing.T) {
	client := &Client{model: "gpt-4"}
	err := client.classifyError(apiError(http.StatusBadRequest, "context_length_exceeded"))

	assert.ErrorIs(t, err, ErrLLMFailure)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "context window")
}

func TestClient_ClassifyError_BadRequest(t *testing.T) {
	client := &Client{model: "gpt-4"}
	err := client.classifyError(apiError(http.StatusBadRequest, "invalid_value"))

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestClient_ClassifyError_Timeout(t *testing.T) {
	client := &Client{model: "gpt-4", timeout: 30 * time.Second}
	err := client.classifyError(context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrLLMFailure)
	assert.Contains(t, err.Error(), "timed out")
}

func TestClient_ModelAvailable(t *testing.T) {
	models := &mockModelsAPI{ids: []string{"gpt-4", "gpt-4o"}}

	client := NewClientWithAPI(nil, models, ClientConfig{Model: "gpt-4"})
	available, err := client.ModelAvailable(context.Background())
	require.NoError(t, err)
	assert.True(t, available)

	client = NewClientWithAPI(nil, models, ClientConfig{Model: "gpt-5-nano"})
	available, err = client.ModelAvailable(context.Background())
	require.NoError(t, err)
	assert.False(t, available)
}

func TestClient_ModelAvailable_APIError(t *testing.T) {
	models := &mockModelsAPI{err: apiError(http.StatusUnauthorized, "")}
	client := NewClientWithAPI(nil, models, ClientConfig{Model: "gpt-4"})

	_, err := client.ModelAvailable(context.Background())
	assert.ErrorIs(t, err, ErrLLMFailure)
}

func TestClient_CumulativeUsage(t *testing.T) {
	client := &Client{
		usage: types.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}

	usage := client.CumulativeUsage()
	assert.Equal(t, 100, usage.InputTokens)
	assert.Equal(t, 50, usage.OutputTokens)
	assert.Equal(t, 150, usage.Total())
}
