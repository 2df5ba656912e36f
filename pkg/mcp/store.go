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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/registry"
)

// recordStore is the persistent external_agents_registry.json described in
// SPEC_FULL.md §6: one JSON file holding every configured Server Record,
// written atomically (temp file + rename), backed in memory by the adapted
// generic registry container. Grounded on pkg/credentials's atomic-write
// convention, applied here to a collection rather than a single record.
type recordStore struct {
	path string

	mu   sync.Mutex
	base *registry.BaseRegistry[ServerRecord]
}

func newRecordStore(path string) (*recordStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating MCP registry dir: %w", err)
	}

	s := &recordStore{path: path, base: registry.NewBaseRegistry[ServerRecord]()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *recordStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading MCP registry: %w", err)
	}

	var records map[string]ServerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing MCP registry: %w", err)
	}
	for _, rec := range records {
		_ = s.base.Register(rec.ServerID, rec)
	}
	return nil
}

// persist snapshots the in-memory records to disk. Caller must hold s.mu.
func (s *recordStore) persist() error {
	records := make(map[string]ServerRecord)
	for _, rec := range s.base.List() {
		records[rec.ServerID] = rec
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return gcserr.Wrap(gcserr.ExecutionFailed, "marshalling MCP registry", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return gcserr.Wrap(gcserr.ExecutionFailed, "writing temp MCP registry", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return gcserr.Wrap(gcserr.ExecutionFailed, "renaming MCP registry into place", err)
	}
	return nil
}

func (s *recordStore) upsert(rec ServerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.base.Register(rec.ServerID, rec); err != nil {
		return err
	}
	return s.persist()
}

func (s *recordStore) get(serverID string) (ServerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.Get(serverID)
}

func (s *recordStore) list() []ServerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.List()
}

func (s *recordStore) setStatus(serverID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.base.Get(serverID)
	if !ok {
		return gcserr.New(gcserr.NoRoute, "unknown MCP server: "+serverID)
	}
	rec.Status = status
	if err := s.base.Register(serverID, rec); err != nil {
		return err
	}
	return s.persist()
}

// setUnhealthy persists the health-check loop's view of a server: its
// current failure streak and the status that streak implies.
func (s *recordStore) setUnhealthy(serverID string, unhealthyCount int, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.base.Get(serverID)
	if !ok {
		return gcserr.New(gcserr.NoRoute, "unknown MCP server: "+serverID)
	}
	rec.UnhealthyCount = unhealthyCount
	rec.Status = status
	if err := s.base.Register(serverID, rec); err != nil {
		return err
	}
	return s.persist()
}
