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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcsconfig"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()

	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0o755))

	cfg := gcsconfig.Defaults()
	cfg.ConfigDir = dir
	cfg.AgentsDir = agentsDir
	cfg.RuntimeDataDir = filepath.Join(dir, "runtime")
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = "http://127.0.0.1:0"
	cfg.LLM.Model = "test-model"
	cfg.ApprovalMode = "yolo"

	k, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Shutdown(context.Background()) })
	return k
}

func writeManifest(t *testing.T, agentsDir, name string, tools []string, domainContext string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("name: " + name + "\n")
	if domainContext != "" {
		b.WriteString("domain_context: \"" + domainContext + "\"\n")
	}
	b.WriteString("tools:\n")
	for _, tool := range tools {
		b.WriteString("  - " + tool + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(agentsDir, name+".yaml"), []byte(b.String()), 0o644))
}

func TestListConfigurations(t *testing.T) {
	k := newTestKernel(t)
	writeManifest(t, k.cfg.AgentsDir, "alpha", []string{"read_file"}, "")
	writeManifest(t, k.cfg.AgentsDir, "beta", []string{"fetch_url"}, "")

	names, err := k.ListConfigurations()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestLoadConfigurationRejectsUnknownToolWithoutMutating(t *testing.T) {
	k := newTestKernel(t)
	writeManifest(t, k.cfg.AgentsDir, "good", []string{"read_file"}, "be helpful")
	require.NoError(t, k.LoadConfiguration("good"))

	writeManifest(t, k.cfg.AgentsDir, "bad", []string{"does_not_exist"}, "")
	err := k.LoadConfiguration("bad")
	require.Error(t, err)

	// The failed load must not have disturbed the previously loaded state.
	require.Equal(t, "good", k.loadedManifest)
	_, ok := k.registry.Get("read_file")
	require.True(t, ok)
}

func TestLoadConfigurationSwapsToolSet(t *testing.T) {
	k := newTestKernel(t)
	writeManifest(t, k.cfg.AgentsDir, "first", []string{"read_file"}, "first context")
	require.NoError(t, k.LoadConfiguration("first"))
	_, ok := k.registry.Get("read_file")
	require.True(t, ok)

	writeManifest(t, k.cfg.AgentsDir, "second", []string{"fetch_url", "list_configurations"}, "second context")
	require.NoError(t, k.LoadConfiguration("second"))

	_, ok = k.registry.Get("read_file")
	require.False(t, ok, "previous manifest's tool should be unregistered")
	_, ok = k.registry.Get("fetch_url")
	require.True(t, ok)
	_, ok = k.registry.Get("list_configurations")
	require.True(t, ok)
	require.Equal(t, "second context", k.domainContext)
}

func TestLoadConfigurationClearsConversationsAndBroadcasts(t *testing.T) {
	k := newTestKernel(t)
	writeManifest(t, k.cfg.AgentsDir, "cfg", []string{"read_file"}, "hi")
	require.NoError(t, k.LoadConfiguration("cfg"))

	_ = k.Conversation("conv-1")
	require.Len(t, k.orchestrators, 1)

	ch := make(chan ConfigurationChange, 1)
	k.Subscribe(ch)

	writeManifest(t, k.cfg.AgentsDir, "cfg2", []string{"fetch_url"}, "bye")
	require.NoError(t, k.LoadConfiguration("cfg2"))

	require.Empty(t, k.orchestrators, "loading a configuration clears active conversations")

	select {
	case change := <-ch:
		require.Equal(t, "cfg2", change.Name)
		require.Equal(t, "bye", change.DomainContext)
	case <-time.After(time.Second):
		t.Fatal("expected a ConfigurationChange notification")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	k := newTestKernel(t)
	writeManifest(t, k.cfg.AgentsDir, "cfg", []string{}, "")
	require.NoError(t, k.LoadConfiguration("cfg"))

	ch := make(chan ConfigurationChange, 1)
	k.Subscribe(ch)
	k.Unsubscribe(ch)

	writeManifest(t, k.cfg.AgentsDir, "cfg2", []string{}, "")
	require.NoError(t, k.LoadConfiguration("cfg2"))

	select {
	case <-ch:
		t.Fatal("unsubscribed channel should not receive notifications")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConversationLazyCreateAndCache(t *testing.T) {
	k := newTestKernel(t)
	writeManifest(t, k.cfg.AgentsDir, "cfg", []string{}, "")
	require.NoError(t, k.LoadConfiguration("cfg"))

	a := k.Conversation("session-a")
	require.NotNil(t, a)
	b := k.Conversation("session-a")
	require.Same(t, a, b, "same conversation id returns the cached orchestrator")

	c := k.Conversation("session-b")
	require.NotSame(t, a, c)
}

func TestCapabilityInterface(t *testing.T) {
	k := newTestKernel(t)
	writeManifest(t, k.cfg.AgentsDir, "cfg", []string{"read_file"}, "")
	require.NoError(t, k.LoadConfiguration("cfg"))

	var capHandle Capability = k
	def, ok := capHandle.GetTool("read_file")
	require.True(t, ok)
	require.Equal(t, "read_file", def.Name)

	names, err := capHandle.ListConfigurations()
	require.NoError(t, err)
	require.Contains(t, names, "cfg")

	capHandle.Notify("some_event", map[string]string{"k": "v"})

	tmp := t.TempDir()
	path := filepath.Join(tmp, "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld\n"), 0o644))

	result, err := capHandle.CallTool(context.Background(), "read_file", map[string]interface{}{"path": path})
	require.NoError(t, err)
	require.True(t, result.Success)
}
