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

package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/observability"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

const (
	defaultCallTimeout     = 30 * time.Second
	defaultApprovalTimeout = 60 * time.Second
)

// Config configures a Manager.
type Config struct {
	CallTimeout     time.Duration
	ApprovalTimeout time.Duration
	Mode            Mode
	External        ExternalCaller // nil if no MCP connections are routed through this manager
	Recorder        Recorder       // nil uses a no-op recorder
}

// Manager is the Tool Execution Manager (C6).
type Manager struct {
	registry *toolregistry.Registry
	external ExternalCaller
	recorder Recorder

	callTimeout     time.Duration
	approvalTimeout time.Duration

	modeMu sync.RWMutex
	mode   Mode

	handlersMu sync.RWMutex
	handlers   map[string]LocalHandler

	approvals *ApprovalQueue
}

// New constructs a Manager bound to registry.
func New(registry *toolregistry.Registry, cfg Config) *Manager {
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	approvalTimeout := cfg.ApprovalTimeout
	if approvalTimeout <= 0 {
		approvalTimeout = defaultApprovalTimeout
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDefault
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Manager{
		registry:        registry,
		external:        cfg.External,
		recorder:        recorder,
		callTimeout:     callTimeout,
		approvalTimeout: approvalTimeout,
		mode:            mode,
		handlers:        make(map[string]LocalHandler),
		approvals:       NewApprovalQueue(16),
	}
}

// RegisterHandler binds an in-process implementation for a Kind == local or
// Kind == service tool already present in the Tool Registry.
func (m *Manager) RegisterHandler(name string, fn LocalHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[name] = fn
}

// SetMode changes the global approval mode for subsequent calls.
func (m *Manager) SetMode(mode Mode) {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()
	m.mode = mode
}

func (m *Manager) currentMode() Mode {
	m.modeMu.RLock()
	defer m.modeMu.RUnlock()
	return m.mode
}

// Approvals exposes the pending-approval queue to whatever surface presents
// decisions to a human (e.g. the chat REPL).
func (m *Manager) Approvals() *ApprovalQueue { return m.approvals }

// Execute runs the full lookup -> validate -> approve -> route -> deadline
// -> record pipeline for a single tool call.
func (m *Manager) Execute(ctx context.Context, toolName string, params map[string]interface{}) (Result, error) {
	start := time.Now()

	tracer := observability.GetTracer("gcs.execution")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, toolName)))
	defer span.End()

	result, err := m.execute(ctx, toolName, params)
	duration := time.Since(start)

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordToolExecution(ctx, toolName, duration, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	span.SetAttributes(attribute.Bool("tool.success", result.Success))

	m.recorder.Record(Record{ToolName: toolName, Params: params, Result: result, Duration: duration, At: start})
	return result, err
}

func (m *Manager) execute(ctx context.Context, toolName string, params map[string]interface{}) (Result, error) {
	def, ok := m.registry.Get(toolName)
	if !ok {
		err := gcserr.New(gcserr.ToolNotFound, "tool not registered: "+toolName)
		return Result{Success: false, ToolName: toolName, Error: err.Error()}, err
	}

	if err := m.registry.ValidateParams(toolName, params); err != nil {
		return Result{Success: false, ToolName: toolName, Error: err.Error()}, err
	}

	if requiresApproval(def.ApprovalPolicy, m.currentMode()) {
		approved, err := m.approvals.Await(ctx, toolName, params, m.approvalTimeout)
		if err != nil {
			return Result{Success: false, ToolName: toolName, Error: err.Error()}, err
		}
		if !approved {
			err := gcserr.New(gcserr.ApprovalDenied, "approval denied for tool: "+toolName)
			return Result{Success: false, ToolName: toolName, Error: err.Error()}, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	output, err := m.route(callCtx, def, params)
	if err != nil {
		if callCtx.Err() != nil {
			err = gcserr.Wrap(gcserr.ExecutionTimeout, "tool execution timed out", err)
		} else if gcserr.KindOf(err) == "" {
			err = gcserr.Wrap(gcserr.ExecutionFailed, "tool execution failed", err)
		}
		return Result{Success: false, ToolName: toolName, Error: err.Error()}, err
	}

	return Result{Success: true, ToolName: toolName, Output: output}, nil
}

func (m *Manager) route(ctx context.Context, def toolregistry.ToolDefinition, params map[string]interface{}) (map[string]interface{}, error) {
	switch def.Kind {
	case toolregistry.KindExternal:
		if m.external == nil {
			return nil, gcserr.New(gcserr.NoRoute, "no MCP connection manager configured")
		}
		if def.Origin == "" {
			return nil, gcserr.New(gcserr.NoRoute, "external tool has no origin server")
		}
		return m.external.CallTool(ctx, def.Origin, def.Name, params)

	case toolregistry.KindLocal, toolregistry.KindService:
		m.handlersMu.RLock()
		handler, ok := m.handlers[def.Name]
		m.handlersMu.RUnlock()
		if !ok {
			return nil, gcserr.New(gcserr.NoRoute, "no handler registered for tool: "+def.Name)
		}
		return handler(ctx, params)

	default:
		return nil, gcserr.New(gcserr.NoRoute, fmt.Sprintf("unknown tool kind %q", def.Kind))
	}
}

// requiresApproval decides whether a call must wait on the approval queue.
// ApprovalNone tools never need it. Under ModeYOLO everything is
// auto-approved. Under ModeAuto and ModePlan, only ApprovalRequired tools
// need it — plan mode's "approves without side effects" and auto mode's
// "auto-approves idempotent/read-only tools" resolve to the same gate here,
// since both are expressed as the ApprovalAuto/ApprovalRequired split a
// tool declares at registration. ModeDefault always needs it.
func requiresApproval(policy toolregistry.ApprovalPolicy, mode Mode) bool {
	if policy == toolregistry.ApprovalNone {
		return false
	}
	switch mode {
	case ModeYOLO:
		return false
	case ModeAuto, ModePlan:
		return policy == toolregistry.ApprovalRequired
	default:
		return true
	}
}
