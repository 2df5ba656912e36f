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

// Package execution is the Tool Execution Manager (C6): the single entry
// point for invoking a tool by name, covering lookup, parameter validation,
// approval gating, routing to a local handler or an MCP connection, a
// per-call deadline, and execution-record keeping. Grounded on
// pkg/tools/registry.go's ExecuteTool (span/metric wrapping around a single
// call) generalized from one handler kind to the three routing kinds this
// spec names.
package execution

import (
	"context"
	"time"
)

// Mode is the global approval mode a turn runs under.
type Mode string

const (
	ModeYOLO    Mode = "yolo"    // auto-approve everything
	ModeAuto    Mode = "auto"    // auto-approve idempotent/read-only tools
	ModePlan    Mode = "plan"    // approve without side effects
	ModeDefault Mode = "default" // require explicit approval
)

// LocalHandler executes a Kind == local or Kind == service tool in-process.
type LocalHandler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// ExternalCaller is the subset of pkg/mcp.Manager the Tool Execution
// Manager needs to route Kind == external calls; satisfied by *mcp.Manager.
type ExternalCaller interface {
	CallTool(ctx context.Context, serverID, name string, args map[string]interface{}) (map[string]interface{}, error)
}

// Result is the outcome of a single tool invocation.
type Result struct {
	Success  bool
	ToolName string
	Output   map[string]interface{}
	Error    string
}

// Record is what step 6 ("Persist the Tool Execution record for the turn")
// hands to whatever owns per-turn bookkeeping (C9).
type Record struct {
	ToolName string
	Params   map[string]interface{}
	Result   Result
	Duration time.Duration
	At       time.Time
}

// Recorder receives a Record after every invocation, success or failure.
type Recorder interface {
	Record(rec Record)
}

type noopRecorder struct{}

func (noopRecorder) Record(Record) {}
