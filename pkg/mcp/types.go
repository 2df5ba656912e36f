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

// Package mcp is the MCP Connection Manager (C5): a set of named
// connections, one per MCP server, over stdio or streamable-HTTP
// transports, with a persistent Server Record registry and a health-check
// loop. Grounded on the teacher's pkg/tool/mcptoolset (stdio, via
// mark3labs/mcp-go/client) and pkg/tools/mcp.go (hand-rolled streamable-HTTP
// JSON-RPC+SSE).
package mcp

import "time"

// TransportKind selects how a connection talks to its server.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportStreamableHTTP TransportKind = "streamable_http"
)

// ConnectParams configures a single MCP server connection.
type ConnectParams struct {
	Transport TransportKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// streamable HTTP
	URL     string
	Headers map[string]string

	Timeout time.Duration // streamable HTTP: wait for an SSE-framed response, default 30s; Manager.CallTool applies its own fixed 30s deadline
}

// Status is the lifecycle state of a Server Record.
type Status string

const (
	StatusActive       Status = "active"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// ServerRecord is the persisted state of one configured MCP server.
// Capabilities is the ordered list of tool names discovered the last time
// the server connected; it is never merged with a prior connect's list, so
// a server that drops tools on reconnect doesn't keep stale entries around.
type ServerRecord struct {
	ServerID       string        `json:"server_id"`
	AgentID        string        `json:"agent_id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Params         ConnectParams `json:"params"`
	Status         Status        `json:"status"`
	Capabilities   []string      `json:"capabilities"`
	LastConnected  time.Time     `json:"last_connected"`
	UnhealthyCount int           `json:"unhealthy_count"`
}

// ToolDescriptor is a tool discovered from an MCP server's tools/list.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// HandshakeCapabilities reports what an MCP server advertised at initialize
// time, distinct from ServerRecord.Capabilities (which names its tools).
type HandshakeCapabilities struct {
	Tools bool
}
