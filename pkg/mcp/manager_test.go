package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

func fakeMCPServer(t *testing.T, toolName string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "initialize":
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: 1, Result: map[string]interface{}{}})
		case "tools/list":
			json.NewEncoder(w).Encode(rpcResponse{
				JSONRPC: "2.0", ID: 1,
				Result: map[string]interface{}{
					"tools": []interface{}{
						map[string]interface{}{
							"name":        toolName,
							"description": "a fake tool",
							"inputSchema": map[string]interface{}{"type": "object"},
						},
					},
				},
			})
		case "tools/call":
			json.NewEncoder(w).Encode(rpcResponse{
				JSONRPC: "2.0", ID: 1,
				Result: map[string]interface{}{"content": []interface{}{map[string]interface{}{"type": "text", "text": "ok"}}},
			})
		}
	}))
}

func newTestManager(t *testing.T) (*Manager, *toolregistry.Registry) {
	t.Helper()
	tools := toolregistry.New()
	mgr, err := NewManager(Config{
		RegistryPath:   filepath.Join(t.TempDir(), "registry.json"),
		HealthInterval: time.Hour,
	}, tools)
	require.NoError(t, err)
	return mgr, tools
}

func TestConnectRegistersToolsBeforeReturning(t *testing.T) {
	srv := fakeMCPServer(t, "fake_search")
	defer srv.Close()

	mgr, tools := newTestManager(t)
	id, descriptors, err := mgr.Connect(t.Context(), "agent-1", ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	def, ok := tools.Get("fake_search")
	require.True(t, ok)
	require.Equal(t, toolregistry.KindExternal, def.Kind)
	require.Equal(t, id, def.Origin)
}

func TestDisconnectRemovesToolsAndMarksRecord(t *testing.T) {
	srv := fakeMCPServer(t, "fake_search")
	defer srv.Close()

	mgr, tools := newTestManager(t)
	id, _, err := mgr.Connect(t.Context(), "agent-1", ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, mgr.Disconnect(id))
	require.False(t, tools.Has("fake_search"))

	rec, ok := mgr.store.get(id)
	require.True(t, ok)
	require.Equal(t, StatusDisconnected, rec.Status)
}

func TestCallToolRoutesThroughLiveConnection(t *testing.T) {
	srv := fakeMCPServer(t, "fake_search")
	defer srv.Close()

	mgr, _ := newTestManager(t)
	id, _, err := mgr.Connect(t.Context(), "agent-1", ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	require.NoError(t, err)

	result, err := mgr.CallTool(t.Context(), id, "fake_search", map[string]interface{}{"query": "x"})
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestCallToolFailsForUnknownServer(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.CallTool(t.Context(), "missing", "tool", nil)
	require.Error(t, err)
}

func TestListConnectedIncludesDisconnectedRecords(t *testing.T) {
	srv := fakeMCPServer(t, "fake_search")
	defer srv.Close()

	mgr, _ := newTestManager(t)
	id, _, err := mgr.Connect(t.Context(), "agent-1", ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, mgr.Disconnect(id))

	records := mgr.ListConnected()
	require.Len(t, records, 1)
	require.Equal(t, StatusDisconnected, records[0].Status)
}

func TestServerIDIsStableForIdenticalParams(t *testing.T) {
	params := ConnectParams{Transport: TransportStreamableHTTP, URL: "http://example.com"}
	require.Equal(t, serverID(params), serverID(params))
}

func TestServerIDIsDeterministicFromURLAlone(t *testing.T) {
	params := ConnectParams{Transport: TransportStreamableHTTP, URL: "http://example.com"}
	other := ConnectParams{Transport: TransportStreamableHTTP, URL: "http://example.com", Headers: map[string]string{"X-Agent": "different"}}
	require.Equal(t, serverID(params), serverID(other))
}

func TestServerIDDiffersForDifferentURLs(t *testing.T) {
	a := ConnectParams{Transport: TransportStreamableHTTP, URL: "http://example.com/a"}
	b := ConnectParams{Transport: TransportStreamableHTTP, URL: "http://example.com/b"}
	require.NotEqual(t, serverID(a), serverID(b))
}
