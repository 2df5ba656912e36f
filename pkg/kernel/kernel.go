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

package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/conversation"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/credentials"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/execution"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gateway"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcsconfig"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/llm"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/mcp"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/oauth"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/observability"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/orchestrator"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

// Kernel is the Kernel/Runtime (C10). It owns the single shared wiring
// graph and every active conversation's orchestrator.
type Kernel struct {
	cfg    *gcsconfig.Config
	logger *slog.Logger

	registry  *toolregistry.Registry
	mcp       *mcp.Manager
	executor  *execution.Manager
	provider  *llm.Provider
	gateway   *gateway.Gateway
	credStore *credentials.Store
	obs       *observability.Manager

	mu              sync.Mutex
	loadedManifest  string
	loadedToolNames []string
	domainContext   string
	conversations   map[string]*conversation.Store
	orchestrators   map[string]*orchestrator.Orchestrator

	observersMu sync.Mutex
	observers   []chan<- ConfigurationChange

	watcher *fileWatcher
}

// New wires the full component graph in the order the original's
// GCSKernel._initialize_components follows: security (credential store),
// registry, MCP connection manager, tool execution manager, LLM provider,
// gateway, observability, then local tool registration.
func New(ctx context.Context, cfg *gcsconfig.Config, logger *slog.Logger) (*Kernel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	credStore, err := credentials.New(filepath.Join(cfg.RuntimeDataDir, "oauth_creds.json"),
		oauth.CredentialRefresher{Client: oauth.New(cfg.QwenClientID, cfg.QwenAuthorizationServer)})
	if err != nil {
		return nil, fmt.Errorf("initializing credential store: %w", err)
	}

	registry := toolregistry.New()

	mcpManager, err := mcp.NewManager(mcp.Config{
		RegistryPath:   filepath.Join(cfg.RuntimeDataDir, "external_agents_registry.json"),
		HealthInterval: cfg.HealthInterval,
		Logger:         logger,
	}, registry)
	if err != nil {
		return nil, fmt.Errorf("initializing MCP connection manager: %w", err)
	}

	executor := execution.New(registry, execution.Config{
		CallTimeout:     cfg.MCPCallTimeout,
		ApprovalTimeout: cfg.ApprovalTimeout,
		Mode:            execution.Mode(cfg.ApprovalMode),
		External:        mcpManager,
	})

	llmCfg := llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLMTimeout,
	}
	if cfg.LLM.APIKey != "" {
		llmCfg.APIKey = cfg.LLM.APIKey
	} else {
		llmCfg.Tokens = llm.CredentialTokenSource{Store: credStore, LockTimeout: cfg.LockTimeout}
	}
	provider := llm.New(llmCfg)
	gw := gateway.New(provider, registry, cfg.LLM.Model)

	obs, err := observability.NewManager(ctx, &observability.Config{
		Tracing: observability.TracingConfig{Enabled: true, Exporter: "stdout", ServiceName: "gcs-runtime"},
		Metrics: observability.MetricsConfig{Enabled: true, Namespace: "gcs"},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}

	k := &Kernel{
		cfg:           cfg,
		logger:        logger,
		registry:      registry,
		mcp:           mcpManager,
		executor:      executor,
		provider:      provider,
		gateway:       gw,
		credStore:     credStore,
		obs:           obs,
		conversations: make(map[string]*conversation.Store),
		orchestrators: make(map[string]*orchestrator.Orchestrator),
	}

	// Handlers are bound ahead of time; the corresponding Tool Registry
	// entry is only added once a loaded manifest names the tool, so the
	// registry's contents always match the currently loaded configuration
	// (P2) while the handlers themselves stay harmlessly idle until then.
	for _, bt := range k.builtinCatalog() {
		executor.RegisterHandler(bt.def.Name, bt.handler)
	}

	mcpManager.Start(ctx)

	watcher, err := newFileWatcher(logger, cfg.ConfigDir, filepath.Join(cfg.RuntimeDataDir, "external_agents_registry.json"))
	if err != nil {
		logger.Warn("kernel: could not start configuration/registry watch", "error", err)
	} else {
		k.watcher = watcher
	}

	logger.Info("kernel: ready", "config_dir", cfg.ConfigDir, "agents_dir", cfg.AgentsDir)
	return k, nil
}

// ListConfigurations returns the names of every manifest available under
// the configured agents directory.
func (k *Kernel) ListConfigurations() ([]string, error) {
	return gcsconfig.ListManifests(k.cfg.AgentsDir)
}

// LoadConfiguration atomically swaps the set of loaded local tools:
// resolves every tool the named manifest declares before mutating
// anything, so a bad manifest never leaves the registry half-swapped,
// clears every active conversation, and broadcasts a ConfigurationChange
// to subscribers. Grounded on gcs_runtime.py's load_configuration: store
// the new domain context (the source's additional_prompt_info) only after
// the swap succeeds, then notify every registered chat interface to clear
// its history.
func (k *Kernel) LoadConfiguration(name string) error {
	manifest, err := gcsconfig.LoadManifest(k.cfg.AgentsDir, name)
	if err != nil {
		return err
	}

	catalog := k.builtinCatalog()
	resolved := make([]builtinTool, 0, len(manifest.Tools))
	for _, toolName := range manifest.Tools {
		bt, ok := catalog[toolName]
		if !ok {
			return gcserr.New(gcserr.ValidationError, fmt.Sprintf("configuration %q names unknown tool %q", name, toolName))
		}
		resolved = append(resolved, bt)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, prevName := range k.loadedToolNames {
		if _, stillNeeded := catalog[prevName]; stillNeeded {
			_ = k.registry.Unregister(prevName)
		}
	}

	loaded := make([]string, 0, len(resolved))
	for _, bt := range resolved {
		if err := k.registry.Register(bt.def); err != nil {
			return fmt.Errorf("loading configuration %q: %w", name, err)
		}
		k.executor.RegisterHandler(bt.def.Name, bt.handler)
		loaded = append(loaded, bt.def.Name)
	}

	k.loadedManifest = name
	k.loadedToolNames = loaded
	k.domainContext = manifest.DomainContext
	k.conversations = make(map[string]*conversation.Store)
	k.orchestrators = make(map[string]*orchestrator.Orchestrator)

	k.broadcast(ConfigurationChange{Name: name, DomainContext: manifest.DomainContext})
	k.logger.Info("kernel: configuration loaded", "name", name, "tools", loaded)
	return nil
}

// Subscribe registers ch to receive a ConfigurationChange whenever
// LoadConfiguration completes. Sends are non-blocking: a slow or full
// subscriber drops the notification rather than stalling the load.
func (k *Kernel) Subscribe(ch chan<- ConfigurationChange) {
	k.observersMu.Lock()
	defer k.observersMu.Unlock()
	k.observers = append(k.observers, ch)
}

// Unsubscribe removes a previously subscribed channel.
func (k *Kernel) Unsubscribe(ch chan<- ConfigurationChange) {
	k.observersMu.Lock()
	defer k.observersMu.Unlock()
	for i, o := range k.observers {
		if o == ch {
			k.observers = append(k.observers[:i], k.observers[i+1:]...)
			return
		}
	}
}

func (k *Kernel) broadcast(change ConfigurationChange) {
	k.observersMu.Lock()
	defer k.observersMu.Unlock()
	for _, ch := range k.observers {
		select {
		case ch <- change:
		default:
		}
	}
}

// Conversation returns the orchestrator for id, creating a fresh
// conversation and orchestrator bound to the current domain context if one
// doesn't exist yet.
func (k *Kernel) Conversation(id string) *orchestrator.Orchestrator {
	k.mu.Lock()
	defer k.mu.Unlock()

	if orch, ok := k.orchestrators[id]; ok {
		return orch
	}

	conv := conversation.New(conversation.Config{
		MaxHistoryLength: k.cfg.MaxHistoryLength,
		MaxContextChars:  k.cfg.CompressionThreshold,
	})
	orch := orchestrator.New(conv, k.gateway, k.executor, orchestrator.Config{
		MaxToolCalls:  k.cfg.MaxToolCalls,
		DomainContext: k.domainContext,
	})
	k.conversations[id] = conv
	k.orchestrators[id] = orch
	return orch
}

// GetTool implements Capability.
func (k *Kernel) GetTool(name string) (toolregistry.ToolDefinition, bool) {
	return k.registry.Get(name)
}

// CallTool implements Capability.
func (k *Kernel) CallTool(ctx context.Context, name string, args map[string]interface{}) (execution.Result, error) {
	return k.executor.Execute(ctx, name, args)
}

// Notify implements Capability: it logs the event, since C10 has no other
// component subscribed to arbitrary named events beyond ConfigurationChange
// (delivered via Subscribe/broadcast above).
func (k *Kernel) Notify(event string, data interface{}) {
	k.logger.Info("kernel: notify", "event", event, "data", data)
}

var _ Capability = (*Kernel)(nil)

// Shutdown tears components down in reverse of New's init order: the
// configuration watch, MCP connections, then observability. Every
// connected MCP server is disconnected individually, draining its tools
// from the Tool Registry and persisting its Server Record as disconnected,
// before the manager's health-check loop is stopped. The credential store
// needs no explicit flush — every Save call is already a complete atomic
// write, so there is nothing left buffered at shutdown.
func (k *Kernel) Shutdown(ctx context.Context) error {
	if k.watcher != nil {
		k.watcher.Close()
	}

	for _, id := range k.mcp.LiveServerIDs() {
		if err := k.mcp.Disconnect(id); err != nil {
			k.logger.Warn("kernel: failed to disconnect MCP server during shutdown", "server_id", id, "error", err)
		}
	}
	k.mcp.Stop()

	return k.obs.Shutdown(ctx)
}
