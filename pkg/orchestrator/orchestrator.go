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

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/conversation"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/execution"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gateway"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
)

const defaultMaxToolCalls = 2

var defaultRecognizedErrorKinds = map[gcserr.Kind]bool{gcserr.NetworkError: true}

const finalPromptAddendum = `The tool-call budget for this turn has been reached. Do not request any more ` +
	`tool calls. Give your best plain-language answer using what you already know. If there are other ` +
	`agents or tools that could help complete the request, end your answer with a line of the form ` +
	`"Suggested Agents: name1, name2".`

// Orchestrator is the Orchestration Turn Loop (C9): it drives one user input
// through conversation append, compression, generation, and bounded tool
// execution, emitting a stream of typed events as it goes.
type Orchestrator struct {
	conversation *conversation.Store
	gateway      *gateway.Gateway
	executor     *execution.Manager

	maxToolCalls         int
	domainContext        string
	recognizedErrorKinds map[gcserr.Kind]bool
}

// New constructs an Orchestrator wired to one conversation, one gateway, and
// one execution manager. All three are shared with the rest of the kernel's
// wiring graph (C10); the orchestrator owns none of their lifecycles.
func New(conv *conversation.Store, gw *gateway.Gateway, exec *execution.Manager, cfg Config) *Orchestrator {
	maxToolCalls := cfg.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = defaultMaxToolCalls
	}
	recognized := cfg.RecognizedErrorKinds
	if recognized == nil {
		recognized = defaultRecognizedErrorKinds
	}
	return &Orchestrator{
		conversation:         conv,
		gateway:              gw,
		executor:             exec,
		maxToolCalls:         maxToolCalls,
		domainContext:        cfg.DomainContext,
		recognizedErrorKinds: recognized,
	}
}

// RunTurn appends input to the conversation and drives it to completion,
// returning a channel of events that is closed when the turn ends (whether
// by a plain-language answer, a bound hit, an error shortcut, a duplicate
// tool call, cancellation, or a fatal generation error). The channel is
// buffered (32 events), so a slow consumer stalls tool execution only once
// the buffer is full.
func (o *Orchestrator) RunTurn(ctx context.Context, input string) <-chan Event {
	events := make(chan Event, 32)
	go func() {
		defer close(events)
		o.runTurn(ctx, input, events)
	}()
	return events
}

func (o *Orchestrator) runTurn(ctx context.Context, input string, events chan<- Event) {
	o.conversation.Append(llm.Message{Role: "user", Content: input})

	if err := o.conversation.CompressIfNeeded(ctx, o.gateway); err != nil {
		// Non-fatal: the original history survives a summarization failure,
		// so the turn proceeds on the uncompressed conversation.
		events <- Event{Kind: EventError, Err: err}
	}

	seen := map[string]bool{}
	var turnResults []execution.Result
	var turnErrs []error
	toolCallsThisTurn := 0
	addendumSent := false

	for {
		if ctx.Err() != nil {
			events <- Event{Kind: EventCancelled, Err: ctx.Err()}
			return
		}

		domainContext := o.domainContext
		if addendumSent {
			domainContext = strings.TrimSpace(domainContext + "\n\n" + finalPromptAddendum)
		}

		resp, err := o.gateway.Generate(ctx, domainContext, o.conversation.Snapshot())
		if err != nil {
			events <- Event{Kind: EventError, Err: err}
			return
		}

		if len(resp.ToolCalls) == 0 || addendumSent {
			o.finish(resp, events)
			return
		}

		o.conversation.Append(llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		duplicate := false
		for _, tc := range resp.ToolCalls {
			if ctx.Err() != nil {
				events <- Event{Kind: EventCancelled, Err: ctx.Err()}
				return
			}

			if toolCallsThisTurn >= o.maxToolCalls {
				break
			}

			key := callKey(tc)
			if seen[key] {
				duplicate = true
				break
			}
			seen[key] = true

			if tc.ID == "" {
				tc.ID = uuid.NewString()
			}
			events <- Event{Kind: EventToolCall, ToolName: tc.Name, ToolCallID: tc.ID, Params: tc.Arguments}

			result, execErr := o.executor.Execute(ctx, tc.Name, tc.Arguments)
			toolCallsThisTurn++
			turnResults = append(turnResults, result)
			if execErr != nil {
				turnErrs = append(turnErrs, execErr)
			}

			llmContent, displayContent := toolResultContents(result)
			o.conversation.Append(llm.Message{Role: "tool", ToolCallID: tc.ID, Name: tc.Name, Content: llmContent})
			events <- Event{Kind: EventToolResponse, ToolName: tc.Name, ToolCallID: tc.ID, Result: result, Content: displayContent}
		}

		if duplicate {
			// P6: a repeated (name, params) call within one turn terminates
			// the loop rather than looping forever on the model repeating
			// itself.
			o.finish(gateway.Response{Content: lastAssistantFallback(turnResults)}, events)
			return
		}

		if kind, ok := allFailedWithRecognizedKind(turnResults, turnErrs, o.recognizedErrorKinds); ok {
			o.finish(gateway.Response{Content: deterministicErrorResponse(kind)}, events)
			return
		}

		if toolCallsThisTurn >= o.maxToolCalls {
			addendumSent = true
		}
	}
}

func (o *Orchestrator) finish(resp gateway.Response, events chan<- Event) {
	o.conversation.Append(llm.Message{Role: "assistant", Content: resp.Content})

	content, agents := splitSuggestedAgents(resp.Content)
	events <- Event{Kind: EventAssistantResponse, Content: content}
	events <- Event{Kind: EventTokenCounts, TokenCounts: resp.TokenCounts}
	events <- Event{
		Kind:            EventFinalResponse,
		Content:         content,
		Conversation:    o.conversation.Snapshot(),
		SuggestedAgents: agents,
	}
}

// callKey identifies a tool call by name and canonicalized arguments for
// duplicate-call detection within a single turn.
func callKey(tc llm.ToolCall) string {
	encoded, err := json.Marshal(tc.Arguments)
	if err != nil {
		return tc.Name
	}
	return tc.Name + "|" + string(encoded)
}

// toolResultContents derives the Tool Result shape's llm_content (fed back
// into the model) and display_content (shown to a human) from an
// execution.Result. Tools may populate Output["llm_content"] /
// Output["display_content"] directly; otherwise the whole output is
// rendered as JSON for both.
func toolResultContents(result execution.Result) (llmContent, displayContent string) {
	if !result.Success {
		return fmt.Sprintf("error: %s", result.Error), result.Error
	}
	if s, ok := result.Output["llm_content"].(string); ok {
		llmContent = s
	}
	if s, ok := result.Output["display_content"].(string); ok {
		displayContent = s
	}
	if llmContent != "" || displayContent != "" {
		if llmContent == "" {
			llmContent = displayContent
		}
		if displayContent == "" {
			displayContent = llmContent
		}
		return llmContent, displayContent
	}
	encoded, err := json.Marshal(result.Output)
	if err != nil {
		return "{}", "{}"
	}
	return string(encoded), string(encoded)
}

// allFailedWithRecognizedKind implements the deterministic error shortcut:
// when every tool call made so far in the turn failed and all of the
// failures classify to the same recognized gcserr.Kind (e.g. a DNS lookup
// failure surfacing as NetworkError), the turn can answer immediately
// without spending another model call.
func allFailedWithRecognizedKind(results []execution.Result, errs []error, recognized map[gcserr.Kind]bool) (gcserr.Kind, bool) {
	if len(results) == 0 || len(errs) != len(results) {
		return "", false
	}
	var kind gcserr.Kind
	for _, err := range errs {
		k := gcserr.KindOf(err)
		if k == "" || !recognized[k] {
			return "", false
		}
		if kind == "" {
			kind = k
		} else if kind != k {
			return "", false
		}
	}
	return kind, true
}

func deterministicErrorResponse(kind gcserr.Kind) string {
	switch kind {
	case gcserr.NetworkError:
		return "I couldn't reach the service needed to complete this request: a network error prevented the " +
			"connection (for example, the host could not be resolved). Please check the address and try again."
	default:
		return fmt.Sprintf("I couldn't complete this request because of a %s error.", kind)
	}
}

func lastAssistantFallback(results []execution.Result) string {
	if len(results) == 0 {
		return "I noticed I was about to repeat a tool call I already made, so I stopped here."
	}
	last := results[len(results)-1]
	if last.Success {
		if s, ok := last.Output["llm_content"].(string); ok && s != "" {
			return s
		}
	}
	return "I noticed I was about to repeat a tool call I already made, so I stopped here."
}

// splitSuggestedAgents pulls a trailing "Suggested Agents: a, b" line out of
// the model's final answer. Absence is not an error: suggested agents are
// advisory, not a reliability contract.
func splitSuggestedAgents(content string) (string, []string) {
	const marker = "Suggested Agents:"
	idx := strings.LastIndex(content, marker)
	if idx == -1 {
		return content, nil
	}
	before := strings.TrimSpace(content[:idx])
	list := strings.TrimSpace(content[idx+len(marker):])
	if list == "" {
		return before, nil
	}
	parts := strings.Split(list, ",")
	agents := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			agents = append(agents, name)
		}
	}
	return before, agents
}
