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

// Package orchestrator is the Orchestration Turn Loop (C9): given one user
// input, it drives the append/compress/generate/execute cycle to
// completion and emits a typed stream of events describing what happened,
// bounded by a maximum number of tool calls per turn and cancellable at
// every suspension point. Grounded on
// original_source/reference/services/ai_orchestrator/turn_manager.py's
// run_turn async-generator shape, translated here to a buffered Go channel
// of typed events consumed by range.
package orchestrator

import (
	"github.com/cogniscient-io/cogniscient-sub000/pkg/execution"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
)

// EventKind classifies a single turn-loop stream event.
type EventKind string

const (
	EventToolCall          EventKind = "tool_call"
	EventToolResponse      EventKind = "tool_response"
	EventAssistantResponse EventKind = "assistant_response"
	EventTokenCounts       EventKind = "token_counts"
	EventFinalResponse     EventKind = "final_response"
	EventCancelled         EventKind = "cancelled"
	EventError             EventKind = "error"
)

// Event is one item of the turn's stream.
type Event struct {
	Kind EventKind

	// EventToolCall / EventToolResponse
	ToolName   string
	ToolCallID string
	Params     map[string]interface{}
	Result     execution.Result

	// EventAssistantResponse / EventFinalResponse
	Content string

	// EventFinalResponse
	Conversation    []llm.Message
	SuggestedAgents []string

	// EventTokenCounts
	TokenCounts llm.TokenCounts

	// EventError / EventCancelled
	Err error
}

// Config bounds and tunes a turn.
type Config struct {
	// MaxToolCalls caps tool calls per user input. Defaults to 2.
	MaxToolCalls int
	// DomainContext is prepended to the system prompt for every call in
	// this turn (OQ-3: scoped per-call, not process-wide).
	DomainContext string
	// RecognizedErrorKinds are the gcserr.Kind values that trigger the
	// deterministic error shortcut when every tool call made so far in
	// the turn failed with one of them (e.g. a DNS lookup failure
	// surfaces as gcserr.NetworkError). Defaults to {NetworkError}.
	RecognizedErrorKinds map[gcserr.Kind]bool
}
