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

// Package toolregistry is the Tool Registry (C4): a mapping from tool name
// to Tool Definition, grounded on the teacher's pkg/tools.ToolRegistry
// (register/get/list shape) and pkg/registry's generic container, adapted
// for idempotent registration and a tool_added/updated/removed notification
// fan-out that C8 subscribes to.
package toolregistry

// Kind classifies how a Tool Execution Manager (C6) routes a call.
type Kind string

const (
	KindLocal    Kind = "local"
	KindService  Kind = "service"
	KindExternal Kind = "external"
)

// ApprovalPolicy controls whether C6's approval gate auto-approves a tool.
type ApprovalPolicy string

const (
	ApprovalAuto     ApprovalPolicy = "auto"     // idempotent/read-only, safe without asking
	ApprovalRequired ApprovalPolicy = "required" // always needs explicit approval
	ApprovalNone     ApprovalPolicy = "none"     // never needs approval regardless of global mode
)

// ToolDefinition describes a registered tool: its name, description, JSON-
// Schema parameters, routing kind, and (for external tools) the MCP server
// it originates from.
type ToolDefinition struct {
	Name           string
	Description    string
	Parameters     map[string]interface{} // JSON Schema
	Kind           Kind
	Origin         string // server_id, set only for Kind == KindExternal
	ApprovalPolicy ApprovalPolicy
	Internal       bool // not listed to agents; used for ancillary tooling only
}

// NotificationType classifies a registry change event.
type NotificationType string

const (
	ToolAdded   NotificationType = "tool_added"
	ToolUpdated NotificationType = "tool_updated"
	ToolRemoved NotificationType = "tool_removed"
)

// Notification is emitted whenever the registry's contents change.
type Notification struct {
	Type NotificationType
	Tool ToolDefinition
}
