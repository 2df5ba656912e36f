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
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
)

const (
	clientName      = "gcs"
	clientVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
)

// stdioTransport wraps mark3labs/mcp-go/client for long-lived subprocess
// MCP connections, grounded on pkg/tool/mcptoolset.connectStdio.
type stdioTransport struct {
	client *client.Client
}

func newStdioTransport(params ConnectParams) (transport, error) {
	env := make([]string, 0, len(params.Env))
	for k, v := range params.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(params.Command, env, params.Args...)
	if err != nil {
		return nil, gcserr.Wrap(gcserr.NetworkError, "creating stdio MCP client", err)
	}

	return &stdioTransport{client: mcpClient}, nil
}

func (t *stdioTransport) Initialize(ctx context.Context) (HandshakeCapabilities, error) {
	if err := t.client.Start(ctx); err != nil {
		return HandshakeCapabilities{}, gcserr.Wrap(gcserr.NetworkError, "starting stdio MCP client", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := t.client.Initialize(ctx, initReq); err != nil {
		t.client.Close()
		return HandshakeCapabilities{}, gcserr.Wrap(gcserr.NetworkError, "initializing MCP session", err)
	}

	return HandshakeCapabilities{Tools: true}, nil
}

func (t *stdioTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, gcserr.Wrap(gcserr.NetworkError, "listing MCP tools", err)
	}

	out := make([]ToolDescriptor, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		out = append(out, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: convertSchema(tool.InputSchema),
		})
	}
	return out, nil
}

func (t *stdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, gcserr.Wrap(gcserr.NetworkError, "calling MCP tool", err)
	}
	return parseCallToolResult(resp)
}

func (t *stdioTransport) Close() error {
	return t.client.Close()
}

func convertSchema(schema mcp.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func parseCallToolResult(resp *mcp.CallToolResult) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	var texts []string
	for _, c := range resp.Content {
		if textContent, ok := c.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	if len(texts) > 0 {
		result["content"] = texts
	}
	if resp.IsError {
		errMsg := "tool execution failed"
		if len(texts) > 0 {
			errMsg = texts[0]
		}
		return nil, gcserr.New(gcserr.ExecutionFailed, errMsg)
	}
	return result, nil
}
