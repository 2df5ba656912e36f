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

// Package kernel is the Kernel/Runtime (C10): it constructs the wiring
// graph (a shared Tool Registry, one C5 MCP Connection Manager, one C6
// Tool Execution Manager bound to both, a C7 Conversation Store per
// conversation, a C8 Gateway bound to C3+C4, and a C9 Orchestrator per
// conversation owning its store), and exposes configuration loading,
// listing, and shutdown.
//
// Grounded on original_source/reference/gcs_kernel/kernel.py's
// GCSKernel (ordered component init/shutdown) and
// original_source/PoC/cogniscient/engine/gcs_runtime.py's
// GCSRuntime.load_configuration (manifest swap, domain-context restore,
// configuration-change broadcast). The Python original's cyclic
// runtime<->registry<->agent references are replaced, per SPEC_FULL.md
// §9, with the narrow Capability handle below passed to tool
// constructors instead of a back-reference to the Kernel itself.
package kernel

import (
	"context"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/execution"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

// Capability is the narrow handle SPEC_FULL.md §9 substitutes for the
// original's cyclic runtime/registry/agent references: get_tool, call_tool,
// list_configurations, notify.
type Capability interface {
	GetTool(name string) (toolregistry.ToolDefinition, bool)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (execution.Result, error)
	ListConfigurations() ([]string, error)
	Notify(event string, data interface{})
}

// ConfigurationChange is broadcast to subscribers whenever LoadConfiguration
// completes successfully.
type ConfigurationChange struct {
	Name          string
	DomainContext string
}

// builtinTool pairs a Tool Registry definition with the in-process handler
// that backs it, for tools the kernel can always offer when a manifest asks
// for them by name.
type builtinTool struct {
	def     toolregistry.ToolDefinition
	handler execution.LocalHandler
}
