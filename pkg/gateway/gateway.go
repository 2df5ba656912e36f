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

// Package gateway is the Contextual LLM Gateway (C8): it assembles the
// system prompt (domain context, a machine-formatted tool registry block,
// tool-call output instructions), converts the Tool Registry snapshot to
// the provider's tool schema, forwards to C3, and extracts tool calls from
// either the provider's native tool_calls or a textual fallback. Grounded
// on the original source's contextual_llm_service.py (system-prompt
// assembly via a bracketed capabilities block prepended ahead of the user
// turn) and pkg/llms/types.go's ConvertToolInfoToDefinition (tool-schema
// shape).
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

const toolCallInstructions = `When you need to call a tool, respond with a single JSON object of the form` + "\n" +
	`{"tool_call": {"name": "<tool name>", "parameters": {...}}}` + "\n" +
	`and nothing else. Otherwise respond with plain text.`

// Provider is the subset of pkg/llm.Provider the gateway needs.
type Provider interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error)
}

// Gateway is the Contextual LLM Gateway (C8).
type Gateway struct {
	provider Provider
	registry *toolregistry.Registry
	model    string
}

// New constructs a Gateway bound to provider and registry. model is the
// default passed to every Generate call.
func New(provider Provider, registry *toolregistry.Registry, model string) *Gateway {
	return &Gateway{provider: provider, registry: registry, model: model}
}

// Response is the result of one gateway-mediated turn.
type Response struct {
	Content     string
	ToolCalls   []llm.ToolCall
	TokenCounts llm.TokenCounts
}

// Generate builds the system prompt, converts the tool registry snapshot to
// provider tool schema, forwards history to C3 with token accounting
// enabled, and extracts tool calls (native or textual fallback) from the
// result.
func (g *Gateway) Generate(ctx context.Context, domainContext string, history []llm.Message) (Response, error) {
	system := g.buildSystemPrompt(domainContext)

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	messages = append(messages, history...)

	resp, err := g.provider.Generate(ctx, llm.GenerateRequest{
		Model:             g.model,
		Messages:          messages,
		Tools:             g.toolDefinitions(),
		ReturnTokenCounts: true,
	})
	if err != nil {
		return Response{}, err
	}

	toolCalls := resp.ToolCalls
	if len(toolCalls) == 0 {
		if tc, ok := extractTextualToolCall(resp.Content); ok {
			toolCalls = []llm.ToolCall{tc}
		}
	}

	return Response{Content: resp.Content, ToolCalls: toolCalls, TokenCounts: resp.TokenCounts}, nil
}

// Summarize satisfies pkg/conversation.Summarizer: it asks the model for a
// concise recap of messages, used by C7's compression step.
func (g *Gateway) Summarize(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := g.provider.Generate(ctx, llm.GenerateRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: "Summarize the following conversation concisely, preserving any decisions, facts, or open questions."},
			{Role: "user", Content: transcript.String()},
		},
	})
	if err != nil {
		return "", gcserr.Wrap(gcserr.ExecutionFailed, "summarizing conversation", err)
	}
	return resp.Content, nil
}

func (g *Gateway) buildSystemPrompt(domainContext string) string {
	var b strings.Builder

	if domainContext != "" {
		b.WriteString(domainContext)
		b.WriteString("\n\n")
	}

	b.WriteString(toolRegistryBlock(g.registry.SnapshotAll()))
	b.WriteString("\n")
	b.WriteString(toolCallInstructions)

	return b.String()
}

func toolRegistryBlock(tools []toolregistry.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("[TOOL_REGISTRY]\n")
	for _, t := range tools {
		if t.Internal {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		if len(t.Parameters) > 0 {
			fmt.Fprintf(&b, "  parameters: %v\n", t.Parameters)
		}
	}
	b.WriteString("[/TOOL_REGISTRY]")
	return b.String()
}

func (g *Gateway) toolDefinitions() []llm.ToolDefinition {
	snapshot := g.registry.SnapshotAll()
	defs := make([]llm.ToolDefinition, 0, len(snapshot))
	for _, t := range snapshot {
		if t.Internal {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}
