package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

type fakeProvider struct {
	resp llm.GenerateResponse
	err  error

	lastReq llm.GenerateRequest
}

func (f *fakeProvider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func newRegistryWithTool(t *testing.T) *toolregistry.Registry {
	t.Helper()
	reg := toolregistry.New()
	require.NoError(t, reg.Register(toolregistry.ToolDefinition{
		Name:        "search",
		Description: "search the web",
		Parameters:  map[string]interface{}{"type": "object"},
	}))
	require.NoError(t, reg.Register(toolregistry.ToolDefinition{
		Name:        "hidden",
		Description: "internal only",
		Internal:    true,
	}))
	return reg
}

func TestGenerateIncludesToolRegistryBlockAndToolSchema(t *testing.T) {
	reg := newRegistryWithTool(t)
	fp := &fakeProvider{resp: llm.GenerateResponse{Content: "hi there"}}
	gw := New(fp, reg, "gpt-4o")

	resp, err := gw.Generate(t.Context(), "You are a billing assistant.", []llm.Message{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Content)

	system := fp.lastReq.Messages[0].Content
	require.Contains(t, system, "You are a billing assistant.")
	require.Contains(t, system, "[TOOL_REGISTRY]")
	require.Contains(t, system, "search: search the web")
	require.NotContains(t, system, "hidden")

	require.Len(t, fp.lastReq.Tools, 1)
	require.Equal(t, "search", fp.lastReq.Tools[0].Name)
}

func TestGeneratePrefersNativeToolCalls(t *testing.T) {
	reg := newRegistryWithTool(t)
	native := []llm.ToolCall{{ID: "1", Name: "search", Arguments: map[string]interface{}{"query": "x"}}}
	fp := &fakeProvider{resp: llm.GenerateResponse{Content: "", ToolCalls: native}}
	gw := New(fp, reg, "gpt-4o")

	resp, err := gw.Generate(t.Context(), "", nil)
	require.NoError(t, err)
	require.Equal(t, native, resp.ToolCalls)
}

func TestGenerateFallsBackToTextualToolCall(t *testing.T) {
	reg := newRegistryWithTool(t)
	fp := &fakeProvider{resp: llm.GenerateResponse{
		Content: "```json\n{\"tool_call\": {\"name\": \"search\", \"parameters\": {\"query\": \"go\"}}}\n```",
	}}
	gw := New(fp, reg, "gpt-4o")

	resp, err := gw.Generate(t.Context(), "", nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "search", resp.ToolCalls[0].Name)
	require.Equal(t, "go", resp.ToolCalls[0].Arguments["query"])

	_, ok := reg.Get(resp.ToolCalls[0].Name)
	require.True(t, ok, "extracted tool call name must resolve against the registry")
}

// TestGenerateFallsBackUsingThePromptsOwnInstructions drives the fallback
// path with the exact envelope shape toolCallInstructions asks the model
// for, so a future drift between the prompt and the parser fails here
// instead of only in a hand-built envelope.
func TestGenerateFallsBackUsingThePromptsOwnInstructions(t *testing.T) {
	reg := newRegistryWithTool(t)
	promptedName := "search"
	content := strings.Replace(toolCallInstructions, "<tool name>", promptedName, 1)
	content = content[strings.Index(content, "{") : strings.LastIndex(content, "}")+1]
	content = strings.Replace(content, "{...}", `{"query": "go"}`, 1)

	fp := &fakeProvider{resp: llm.GenerateResponse{Content: content}}
	gw := New(fp, reg, "gpt-4o")

	resp, err := gw.Generate(t.Context(), "", nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, promptedName, resp.ToolCalls[0].Name)

	_, ok := reg.Get(resp.ToolCalls[0].Name)
	require.True(t, ok, "extracted tool call name must resolve against the registry")
}

func TestGenerateWithPlainTextHasNoToolCalls(t *testing.T) {
	reg := newRegistryWithTool(t)
	fp := &fakeProvider{resp: llm.GenerateResponse{Content: "just a regular answer"}}
	gw := New(fp, reg, "gpt-4o")

	resp, err := gw.Generate(t.Context(), "", nil)
	require.NoError(t, err)
	require.Empty(t, resp.ToolCalls)
}

func TestSummarizeReturnsEmptyForNoMessages(t *testing.T) {
	reg := newRegistryWithTool(t)
	fp := &fakeProvider{}
	gw := New(fp, reg, "gpt-4o")

	summary, err := gw.Summarize(t.Context(), nil)
	require.NoError(t, err)
	require.Empty(t, summary)
}

func TestSummarizeForwardsTranscript(t *testing.T) {
	reg := newRegistryWithTool(t)
	fp := &fakeProvider{resp: llm.GenerateResponse{Content: "a recap"}}
	gw := New(fp, reg, "gpt-4o")

	summary, err := gw.Summarize(t.Context(), []llm.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}})
	require.NoError(t, err)
	require.Equal(t, "a recap", summary)
	require.Contains(t, fp.lastReq.Messages[1].Content, "user: hi")
}

func TestExtractTextualToolCallHandlesBracesInStrings(t *testing.T) {
	content := `{"tool_call": {"name": "search", "parameters": {"note": "contains { and } chars"}}}`
	tc, ok := extractTextualToolCall(content)
	require.True(t, ok)
	require.Equal(t, "search", tc.Name)
	require.Equal(t, "contains { and } chars", tc.Arguments["note"])
}

func TestExtractTextualToolCallReturnsFalseForPlainText(t *testing.T) {
	_, ok := extractTextualToolCall("no tool call here")
	require.False(t, ok)
}
