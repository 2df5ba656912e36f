// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/httpclient"
)

// TokenSource supplies a bearer access token for providers requiring OAuth
// auth (C1/C2); AccessToken is called before every request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// staticAPIKey is a TokenSource for providers authenticated with a plain
// API key rather than an OAuth-issued bearer token.
type staticAPIKey string

func (k staticAPIKey) AccessToken(context.Context) (string, error) { return string(k), nil }

// Provider is the LLM Provider Adapter (C3): a single call/stream interface
// over one provider-agnostic chat-completions endpoint.
type Provider struct {
	baseURL    string
	model      string
	tokens     TokenSource
	httpClient *httpclient.Client
	tokenizer  *tokenizer
}

// Config configures a Provider.
type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	Tokens     TokenSource // takes priority over APIKey when set
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// New builds a Provider from cfg. Retry/backoff is delegated to the shared
// httpclient.Client. MaxRetries counts retries after the first try, so the
// default of 2 gives at most 3 attempts. 429 and 503 back off exponentially
// from BaseDelay (default 1s) plus up to 10% jitter, capped at MaxDelay
// (default 60s); 408, 500, 502 and 504 are retried at most twice, after
// fixed 2s and 3s waits.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = staticAPIKey(cfg.APIKey)
	}

	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		tokens:  tokens,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(cfg.BaseDelay),
			httpclient.WithMaxDelay(cfg.MaxDelay),
		),
		tokenizer: newTokenizer(cfg.Model),
	}
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Tools       []providerTool   `json:"tools,omitempty"`
}

type providerTool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type chatChoice struct {
	Message struct {
		Content   string              `json:"content"`
		ToolCalls []rawProviderCall `json:"tool_calls"`
	} `json:"message"`
}

type rawProviderCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

func toProviderTools(tools []ToolDefinition) []providerTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]providerTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, providerTool{Type: "function", Function: t})
	}
	return out
}

func (p *Provider) buildRequest(ctx context.Context, req GenerateRequest, stream bool) (*http.Request, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	body := chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
		Tools:       toProviderTools(req.Tools),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gcserr.Wrap(gcserr.LLMParseError, "encoding request body", err)
	}

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, gcserr.Wrap(gcserr.NetworkError, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		if gcserr.KindOf(err) != "" {
			return nil, err
		}
		return nil, gcserr.Wrap(gcserr.AuthError, "obtaining access token", err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return httpReq, nil
}

// Generate performs a single non-streaming call.
func (p *Provider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	httpReq, err := p.buildRequest(ctx, req, false)
	if err != nil {
		return GenerateResponse{}, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if resp != nil && resp.StatusCode >= 400 {
		resp.Body.Close()
		return GenerateResponse{}, translateStatusError(resp.StatusCode)
	}
	if err != nil {
		return GenerateResponse{}, translateTransportError(err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return GenerateResponse{}, gcserr.Wrap(gcserr.LLMParseError, "decoding response body", err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, gcserr.New(gcserr.LLMParseError, "response contained no choices")
	}

	choice := parsed.Choices[0]
	result := GenerateResponse{
		Content:   choice.Message.Content,
		ToolCalls: parseToolCalls(choice.Message.ToolCalls),
	}

	if req.ReturnTokenCounts {
		result.TokenCounts = p.tokenCounts(parsed.Usage, req.Messages, result.Content)
	}

	return result, nil
}

func parseToolCalls(raw []rawProviderCall) []ToolCall {
	if len(raw) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(raw))
	for _, r := range raw {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(r.Function.Arguments), &args)
		out = append(out, ToolCall{
			ID:        r.ID,
			Name:      r.Function.Name,
			Arguments: args,
			RawArgs:   r.Function.Arguments,
		})
	}
	return out
}

func (p *Provider) tokenCounts(usage *chatUsage, messages []Message, completion string) TokenCounts {
	if usage != nil && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		total := usage.TotalTokens
		if total == 0 {
			total = usage.PromptTokens + usage.CompletionTokens
		}
		return TokenCounts{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      total,
		}
	}

	prompt := p.tokenizer.countMessages(messages)
	completionTokens := p.tokenizer.count(completion)
	return TokenCounts{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
		Estimated:        true,
	}
}

func translateTransportError(err error) error {
	if retryErr, ok := err.(*httpclient.RetryableError); ok {
		return gcserr.Wrap(gcserr.ServerError, "provider request exhausted retries", retryErr)
	}
	return gcserr.Wrap(gcserr.NetworkError, "provider request failed", err)
}

func translateStatusError(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return gcserr.New(gcserr.AuthError, fmt.Sprintf("provider rejected credentials (%d)", status))
	case status == http.StatusTooManyRequests:
		return gcserr.New(gcserr.RateLimit, "provider rate limit exceeded")
	case status >= 500:
		return gcserr.New(gcserr.ServerError, fmt.Sprintf("provider server error (%d)", status))
	default:
		return gcserr.New(gcserr.ValidationError, fmt.Sprintf("provider rejected request (%d)", status))
	}
}

// Stream performs a streaming call and returns a channel of events. The
// channel is closed after a terminal token_counts or error event.
func (p *Provider) Stream(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error) {
	httpReq, err := p.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if resp != nil && resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, translateStatusError(resp.StatusCode)
	}
	if err != nil {
		return nil, translateTransportError(err)
	}

	events := make(chan StreamEvent, 100)
	go p.consumeSSE(ctx, resp.Body, req, events)
	return events, nil
}

type sseDelta struct {
	Content   string            `json:"content"`
	ToolCalls []rawProviderCall `json:"tool_calls"`
}

type sseChoice struct {
	Delta sseDelta `json:"delta"`
}

type sseChunk struct {
	Choices []sseChoice `json:"choices"`
	Usage   *chatUsage  `json:"usage"`
}

// consumeSSE reads "data: {...}" frames until "data: [DONE]" or the stream
// closes, accumulating content/tool-call deltas and emitting a terminal
// token_counts event per §4.3.
func (p *Provider) consumeSSE(ctx context.Context, body io.ReadCloser, req GenerateRequest, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	var (
		contentBuilder strings.Builder
		lastUsage      *chatUsage
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	emit := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			emit(StreamEvent{Kind: StreamError, Err: gcserr.Wrap(gcserr.LLMParseError, "decoding stream chunk", err)})
			return
		}
		if chunk.Usage != nil {
			lastUsage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			contentBuilder.WriteString(delta.Content)
			if !emit(StreamEvent{Kind: StreamChunk, Content: delta.Content}) {
				return
			}
		}
		if len(delta.ToolCalls) > 0 {
			if !emit(StreamEvent{Kind: StreamChunk, ToolCallsDelta: parseToolCalls(delta.ToolCalls)}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		emit(StreamEvent{Kind: StreamError, Err: gcserr.Wrap(gcserr.NetworkError, "reading stream", err)})
		return
	}

	if req.ReturnTokenCounts {
		emit(StreamEvent{Kind: StreamTokenCounts, TokenCounts: p.tokenCounts(lastUsage, req.Messages, contentBuilder.String())})
	}
}
