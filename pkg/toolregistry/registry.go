package toolregistry

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/registry"
)

// Registry is the Tool Registry (C4). It does not execute tools; it only
// describes them and notifies subscribers (notably C8) when the set of
// tools changes.
type Registry struct {
	base *registry.BaseRegistry[ToolDefinition]

	schemaMu sync.RWMutex
	schemas  map[string]*jsonschema.Schema

	subMu       sync.Mutex
	subscribers map[chan<- Notification]struct{}
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		base:        registry.NewBaseRegistry[ToolDefinition](),
		schemas:     make(map[string]*jsonschema.Schema),
		subscribers: make(map[chan<- Notification]struct{}),
	}
}

// Subscribe registers ch to receive future notifications. Sends are
// best-effort: a subscriber that isn't draining its channel misses
// notifications rather than blocking the registry.
func (r *Registry) Subscribe(ch chan<- Notification) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch from the notification fan-out.
func (r *Registry) Unsubscribe(ch chan<- Notification) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	delete(r.subscribers, ch)
}

func (r *Registry) notify(n Notification) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

func compileSchema(name string, parameters map[string]interface{}) (*jsonschema.Schema, error) {
	if len(parameters) == 0 {
		return nil, nil
	}

	compiler := jsonschema.NewCompiler()
	resource := "tool://" + name
	if err := compiler.AddResource(resource, mapResource(parameters)); err != nil {
		return nil, fmt.Errorf("loading schema for tool %s: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for tool %s: %w", name, err)
	}
	return schema, nil
}

// Register adds or replaces the Tool Definition for def.Name, compiling its
// parameter schema and emitting tool_added (new name) or tool_updated
// (existing name).
func (r *Registry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return gcserr.New(gcserr.ValidationError, "tool name cannot be empty")
	}

	schema, err := compileSchema(def.Name, def.Parameters)
	if err != nil {
		return gcserr.Wrap(gcserr.ValidationError, "invalid parameter schema", err)
	}

	existed := r.base.Has(def.Name)

	if err := r.base.Register(def.Name, def); err != nil {
		return gcserr.Wrap(gcserr.ValidationError, "registering tool", err)
	}

	r.schemaMu.Lock()
	r.schemas[def.Name] = schema
	r.schemaMu.Unlock()

	kind := ToolAdded
	if existed {
		kind = ToolUpdated
	}
	r.notify(Notification{Type: kind, Tool: def})
	return nil
}

// Update replaces an existing Tool Definition, returning TOOL_NOT_FOUND if
// no tool with that name is registered.
func (r *Registry) Update(def ToolDefinition) error {
	if !r.base.Has(def.Name) {
		return gcserr.New(gcserr.ToolNotFound, fmt.Sprintf("tool %s not found", def.Name))
	}
	return r.Register(def)
}

// Unregister removes a tool and emits tool_removed.
func (r *Registry) Unregister(name string) error {
	def, ok := r.base.Get(name)
	if !ok {
		return gcserr.New(gcserr.ToolNotFound, fmt.Sprintf("tool %s not found", name))
	}

	if err := r.base.Remove(name); err != nil {
		return gcserr.Wrap(gcserr.ToolNotFound, "removing tool", err)
	}

	r.schemaMu.Lock()
	delete(r.schemas, name)
	r.schemaMu.Unlock()

	r.notify(Notification{Type: ToolRemoved, Tool: def})
	return nil
}

// UnregisterOrigin removes every tool registered with the given origin
// (an MCP server_id), used when C5 disconnects a server.
func (r *Registry) UnregisterOrigin(origin string) error {
	for _, def := range r.base.List() {
		if def.Kind == KindExternal && def.Origin == origin {
			if err := r.Unregister(def.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get returns the Tool Definition for name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	return r.base.Get(name)
}

// Has reports whether name is currently registered.
func (r *Registry) Has(name string) bool {
	return r.base.Has(name)
}

// SnapshotAll returns every registered Tool Definition.
func (r *Registry) SnapshotAll() []ToolDefinition {
	return r.base.List()
}

// ValidateParams validates params against the named tool's JSON-Schema.
// Register only compiles the schema; C6 calls this before every execution.
func (r *Registry) ValidateParams(name string, params map[string]interface{}) error {
	r.schemaMu.RLock()
	schema, hasSchema := r.schemas[name]
	r.schemaMu.RUnlock()

	if !hasSchema || schema == nil {
		return nil
	}

	if err := schema.Validate(toJSONValue(params)); err != nil {
		return gcserr.Wrap(gcserr.ValidationError, fmt.Sprintf("parameters for tool %s failed schema validation", name), err)
	}
	return nil
}
