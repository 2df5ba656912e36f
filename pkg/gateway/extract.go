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

package gateway

import (
	"encoding/json"
	"strings"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
)

type textualToolCall struct {
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

type textualToolCallEnvelope struct {
	ToolCall textualToolCall `json:"tool_call"`
}

// extractTextualToolCall implements the tool-call extraction contract's
// fallback path: strip markdown code fences, locate the first balanced JSON
// object via a brace scan, and parse it as a {"tool_call": {...}} envelope.
// The envelope's name is used as-is: every tool in the registry, built-in
// or MCP-discovered, is registered under a bare name (toolCallInstructions
// asks the model for exactly that), so no further namespacing is applied.
func extractTextualToolCall(content string) (llm.ToolCall, bool) {
	stripped := stripCodeFences(content)

	obj, ok := firstBalancedObject(stripped)
	if !ok {
		return llm.ToolCall{}, false
	}

	var env textualToolCallEnvelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		return llm.ToolCall{}, false
	}
	if env.ToolCall.Name == "" {
		return llm.ToolCall{}, false
	}

	return llm.ToolCall{Name: env.ToolCall.Name, Arguments: env.ToolCall.Parameters, RawArgs: obj}, true
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "json" || firstLine == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstBalancedObject scans for the first top-level '{...}' span, honoring
// nested braces and string literals so braces inside quoted values don't
// throw off the balance count.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
