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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

const (
	defaultCallTimeout     = 30 * time.Second
	defaultHealthInterval  = 30 * time.Second
	maxConsecutiveFailures = 5
)

// connection is the live, in-process half of a Server Record: the open
// transport plus the failure streak the health-check loop tracks against
// it. The persisted counterpart is ServerRecord in store.go.
type connection struct {
	mu           sync.Mutex
	transport    transport
	agentID      string
	serverID     string
	capabilities HandshakeCapabilities
	failures     int
}

// Manager is the MCP Connection Manager (C5): it owns every live MCP
// connection, mirrors their lifecycle into a persistent Server Record
// registry, registers their tools into the Tool Registry (C4) under an
// origin tag, and runs a background health-check loop that evicts
// connections after repeated failures. Grounded on
// original_source/reference/gcs_kernel/kernel.py's _connect_registry_to_mcp
// wiring between the kernel's MCP manager and its tool registry.
type Manager struct {
	store *recordStore
	tools *toolregistry.Registry
	log   *slog.Logger

	healthInterval time.Duration

	mu    sync.Mutex
	conns map[string]*connection

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// Config configures a Manager.
type Config struct {
	// RegistryPath is the path to the persisted Server Record JSON file.
	RegistryPath string
	// HealthInterval is how often active connections are health-checked.
	// Defaults to 30s.
	HealthInterval time.Duration
	Logger         *slog.Logger
}

// NewManager constructs a Manager backed by the Server Record file at
// cfg.RegistryPath, wiring discovered tools into tools. It does not
// reconnect previously active servers; call Start for that.
func NewManager(cfg Config, tools *toolregistry.Registry) (*Manager, error) {
	store, err := newRecordStore(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		store:          store,
		tools:          tools,
		log:            log,
		healthInterval: interval,
		conns:          make(map[string]*connection),
	}, nil
}

// serverID is a content-hash of the server's url alone: two connections to
// the same url — whichever agent opens them, over whatever transport
// params — resolve to the same Server Record, per the data model's
// server_id invariant.
func serverID(params ConnectParams) string {
	h := sha256.New()
	fmt.Fprint(h, canonicalURL(params))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// canonicalURL is the url a server's server_id is hashed from. Streamable-
// HTTP servers are named by their URL directly; stdio servers have none, so
// their command line stands in for it.
func canonicalURL(params ConnectParams) string {
	if params.Transport == TransportStdio {
		return "stdio:" + params.Command + " " + strings.Join(params.Args, " ")
	}
	return params.URL
}

// Start launches the health-check loop and attempts to reconnect every
// Server Record whose last known status was active.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	m.eg = eg

	for _, rec := range m.store.list() {
		if rec.Status != StatusActive {
			continue
		}
		rec := rec
		eg.Go(func() error {
			if _, _, err := m.Connect(egCtx, rec.AgentID, rec.Params); err != nil {
				m.log.Warn("MCP reconnect failed", "server_id", rec.ServerID, "error", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		m.healthCheckLoop(egCtx)
		return nil
	})
}

// Stop cancels the health-check loop and reconnection attempts, and closes
// every live connection. It does not mark Server Records disconnected:
// callers that want that should call Disconnect explicitly per server.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.eg != nil {
		_ = m.eg.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		c.transport.Close()
	}
	m.conns = make(map[string]*connection)
}

// Connect opens a connection to an MCP server, discovers its tools, and
// registers them into the Tool Registry under this server's origin tag
// before returning: the tool registration happens-before the caller
// observes success. The Server Record is persisted before the tools are
// registered, so a crash between the two leaves a persisted record whose
// tools were never registered.
func (m *Manager) Connect(ctx context.Context, agentID string, params ConnectParams) (string, []ToolDescriptor, error) {
	id := serverID(params)

	tr, err := newTransport(params)
	if err != nil {
		return "", nil, err
	}

	caps, err := tr.Initialize(ctx)
	if err != nil {
		return "", nil, err
	}

	descriptors, err := tr.ListTools(ctx)
	if err != nil {
		tr.Close()
		return "", nil, err
	}

	toolNames := make([]string, len(descriptors))
	for i, d := range descriptors {
		toolNames[i] = d.Name
	}

	rec := ServerRecord{
		ServerID:      id,
		AgentID:       agentID,
		Params:        params,
		Status:        StatusActive,
		Capabilities:  toolNames,
		LastConnected: time.Now(),
	}
	if prev, ok := m.store.get(id); ok {
		rec.Name = prev.Name
		rec.Description = prev.Description
	}
	if err := m.store.upsert(rec); err != nil {
		tr.Close()
		return "", nil, err
	}

	for _, d := range descriptors {
		def := toolregistry.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
			Kind:        toolregistry.KindExternal,
			Origin:      id,
		}
		if err := m.tools.Register(def); err != nil {
			m.log.Warn("failed to register MCP tool", "server_id", id, "tool", d.Name, "error", err)
		}
	}

	m.mu.Lock()
	m.conns[id] = &connection{transport: tr, agentID: agentID, serverID: id, capabilities: caps}
	m.mu.Unlock()

	return id, descriptors, nil
}

// Disconnect closes the connection, removes every tool it contributed from
// the Tool Registry, and marks the Server Record disconnected. It returns
// only after the owned tools are gone, so a caller never observes a
// disconnected server whose tools are still routable.
func (m *Manager) Disconnect(serverIDStr string) error {
	m.mu.Lock()
	c, ok := m.conns[serverIDStr]
	delete(m.conns, serverIDStr)
	m.mu.Unlock()

	if !ok {
		return gcserr.New(gcserr.NoRoute, "unknown MCP server: "+serverIDStr)
	}

	c.transport.Close()

	if err := m.tools.UnregisterOrigin(serverIDStr); err != nil {
		return err
	}
	return m.store.setStatus(serverIDStr, StatusDisconnected)
}

// ListTools returns the tools currently discovered from the given server.
func (m *Manager) ListTools(ctx context.Context, serverIDStr string) ([]ToolDescriptor, error) {
	c, err := m.connFor(serverIDStr)
	if err != nil {
		return nil, err
	}
	return c.transport.ListTools(ctx)
}

// CallTool invokes name on the given server with a per-call deadline.
func (m *Manager) CallTool(ctx context.Context, serverIDStr, name string, args map[string]interface{}) (map[string]interface{}, error) {
	c, err := m.connFor(serverIDStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	result, err := c.transport.CallTool(ctx, name, args)
	m.recordHealth(c, err)
	return result, err
}

// ListConnected returns every Server Record, active or not.
func (m *Manager) ListConnected() []ServerRecord {
	return m.store.list()
}

// Capabilities returns what the given server advertised at connect time.
func (m *Manager) Capabilities(serverIDStr string) (HandshakeCapabilities, error) {
	c, err := m.connFor(serverIDStr)
	if err != nil {
		return HandshakeCapabilities{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities, nil
}

// LiveServerIDs returns the server_id of every currently connected server,
// for callers (such as shutdown) that need to disconnect each of them.
func (m *Manager) LiveServerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) connFor(serverIDStr string) (*connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[serverIDStr]
	if !ok {
		return nil, gcserr.New(gcserr.NoRoute, "MCP server not connected: "+serverIDStr)
	}
	return c, nil
}

func (m *Manager) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Manager) checkAll(ctx context.Context) {
	m.mu.Lock()
	targets := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		targets = append(targets, c)
	}
	m.mu.Unlock()

	for _, c := range targets {
		checkCtx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
		_, err := c.transport.ListTools(checkCtx)
		cancel()

		if m.recordHealth(c, err) {
			m.log.Warn("MCP server evicted after repeated health-check failures", "server_id", c.serverID)
			_ = m.Disconnect(c.serverID)
		}
	}
}

// recordHealth updates c's failure streak, persists it onto the Server
// Record as unhealthy_count, and reports whether it just crossed the
// eviction threshold. A failure short of that threshold moves the record's
// status to error rather than leaving it active, so a caller reading the
// registry can tell a flaky server from a healthy one.
func (m *Manager) recordHealth(c *connection, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.failures = 0
		if setErr := m.store.setUnhealthy(c.serverID, 0, StatusActive); setErr != nil {
			m.log.Warn("failed to persist MCP health state", "server_id", c.serverID, "error", setErr)
		}
		return false
	}

	c.failures++
	evict := c.failures >= maxConsecutiveFailures
	if !evict {
		if setErr := m.store.setUnhealthy(c.serverID, c.failures, StatusError); setErr != nil {
			m.log.Warn("failed to persist MCP health state", "server_id", c.serverID, "error", setErr)
		}
	}
	return evict
}
