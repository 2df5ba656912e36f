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

// Package llm is the LLM Provider Adapter (C3): a single call/stream
// interface over a provider-agnostic chat-completions HTTP contract, with
// token counting and taxonomy error translation.
package llm

// Message is one entry in a conversation, shared with pkg/conversation and
// pkg/gateway.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition is the provider-facing shape of a tool: name, description
// and a JSON-Schema for its parameters.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	RawArgs   string                 `json:"raw_args"`
}

// TokenCounts is the final accounting for a generate call, preferring
// provider-reported usage and falling back to a local tokenizer estimate.
type TokenCounts struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated"`
}

// GenerateRequest is the single shape accepted by Provider.Generate and
// Provider.Stream.
type GenerateRequest struct {
	Model             string
	Messages          []Message
	Tools             []ToolDefinition
	Temperature       float64
	MaxTokens         int
	ReturnTokenCounts bool
}

// GenerateResponse is the non-streaming result: an absent ToolCalls slice
// means a direct text response.
type GenerateResponse struct {
	Content     string
	ToolCalls   []ToolCall
	TokenCounts TokenCounts
}

// StreamEventKind classifies a single StreamEvent.
type StreamEventKind string

const (
	StreamChunk       StreamEventKind = "chunk"
	StreamError       StreamEventKind = "error"
	StreamTokenCounts StreamEventKind = "token_counts"
)

// StreamEvent is one item of the lazy sequence returned by Provider.Stream.
// The terminal token_counts event carries the final accounting.
type StreamEvent struct {
	Kind            StreamEventKind
	Content         string
	ToolCallsDelta  []ToolCall
	TokenCounts     TokenCounts
	Err             error
}
