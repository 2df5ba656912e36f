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

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/httpclient"
)

const defaultSSEResponseTimeout = 30 * time.Second

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// httpTransport is a hand-rolled streamable-HTTP JSON-RPC client: each
// operation opens a short-lived HTTP session, reads either a single JSON
// object or an SSE stream of frames, and closes. Grounded on
// pkg/tools/mcp.go's MCPToolSource.makeRequest.
type httpTransport struct {
	url        string
	headers    map[string]string
	httpClient *httpclient.Client
	timeout    time.Duration

	sessionMu sync.RWMutex
	sessionID string
}

func newHTTPTransport(params ConnectParams) transport {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultSSEResponseTimeout
	}
	return &httpTransport{
		url:     params.URL,
		headers: params.Headers,
		timeout: timeout,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}
}

func (t *httpTransport) Initialize(ctx context.Context) (HandshakeCapabilities, error) {
	resp, err := t.request(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]interface{}{"name": clientName, "version": clientVersion},
	})
	if err != nil {
		return HandshakeCapabilities{}, err
	}
	if resp.Error != nil {
		return HandshakeCapabilities{}, gcserr.New(gcserr.NetworkError, "MCP initialize error: "+resp.Error.Message)
	}
	return HandshakeCapabilities{Tools: true}, nil
}

func (t *httpTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := t.request(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, gcserr.New(gcserr.NetworkError, "MCP tools/list error: "+resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rawTools, ok := result["tools"].([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]ToolDescriptor, 0, len(rawTools))
	for _, item := range rawTools {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		desc := ToolDescriptor{
			Name:        stringField(m, "name"),
			Description: stringField(m, "description"),
		}
		if schema, ok := m["inputSchema"].(map[string]interface{}); ok {
			desc.InputSchema = schema
		}
		out = append(out, desc)
	}
	return out, nil
}

func (t *httpTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	resp, err := t.request(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, gcserr.New(gcserr.ExecutionFailed, resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return map[string]interface{}{"result": resp.Result}, nil
	}
	if isError, _ := result["isError"].(bool); isError {
		return nil, gcserr.New(gcserr.ExecutionFailed, extractErrorText(result))
	}
	return result, nil
}

func (t *httpTransport) Close() error { return nil }

func extractErrorText(result map[string]interface{}) string {
	if content, ok := result["content"].([]interface{}); ok {
		for _, c := range content {
			if cm, ok := c.(map[string]interface{}); ok {
				if text, ok := cm["text"].(string); ok {
					return text
				}
			}
		}
	}
	return "tool execution failed"
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func (t *httpTransport) request(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, gcserr.Wrap(gcserr.NetworkError, "encoding MCP request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, gcserr.Wrap(gcserr.NetworkError, "building MCP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	t.sessionMu.RLock()
	sessionID := t.sessionID
	t.sessionMu.RUnlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, gcserr.Wrap(gcserr.NetworkError, "MCP request failed", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("mcp-session-id"); sid != "" {
		t.sessionMu.Lock()
		t.sessionID = sid
		t.sessionMu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, gcserr.New(gcserr.NetworkError, fmt.Sprintf("MCP HTTP error %d: %s", resp.StatusCode, string(body)))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return t.readSSEResponse(resp.Body)
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, gcserr.Wrap(gcserr.LLMParseError, "decoding MCP response", err)
	}
	return &parsed, nil
}

// readSSEResponse reads SSE frames until the first complete JSON-RPC
// message or the per-call timeout elapses.
func (t *httpTransport) readSSEResponse(body io.ReadCloser) (*rpcResponse, error) {
	type result struct {
		resp *rpcResponse
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer body.Close()
		reader := bufio.NewReader(body)
		var data strings.Builder

		for {
			line, err := reader.ReadString('\n')
			trimmed := strings.TrimSpace(line)

			if strings.HasPrefix(trimmed, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
			} else if trimmed == "" && data.Len() > 0 {
				var parsed rpcResponse
				if parseErr := json.Unmarshal([]byte(data.String()), &parsed); parseErr == nil {
					resultCh <- result{resp: &parsed}
					return
				}
				data.Reset()
			}

			if err != nil {
				break
			}
		}

		if data.Len() > 0 {
			var parsed rpcResponse
			if parseErr := json.Unmarshal([]byte(data.String()), &parsed); parseErr == nil {
				resultCh <- result{resp: &parsed}
				return
			}
		}
		resultCh <- result{err: gcserr.New(gcserr.NetworkError, "SSE stream ended without a complete message")}
	}()

	timeout := t.timeout
	if timeout <= 0 {
		timeout = defaultSSEResponseTimeout
	}

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-time.After(timeout):
		return nil, gcserr.New(gcserr.ExecutionTimeout, fmt.Sprintf("timeout reading SSE response after %v", timeout))
	}
}
