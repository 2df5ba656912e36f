package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
)

func TestHTTPTransportInitializeSetsSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json, text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("mcp-session-id", "sess-123")
		json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: 1, Result: map[string]interface{}{}})
	}))
	defer srv.Close()

	tr := newHTTPTransport(ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	caps, err := tr.Initialize(t.Context())
	require.NoError(t, err)
	require.True(t, caps.Tools)

	ht := tr.(*httpTransport)
	require.Equal(t, "sess-123", ht.sessionID)
}

func TestHTTPTransportListToolsParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		require.Equal(t, "tools/list", req.Method)
		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      1,
			Result: map[string]interface{}{
				"tools": []interface{}{
					map[string]interface{}{
						"name":        "search",
						"description": "search the web",
						"inputSchema": map[string]interface{}{"type": "object"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	tr := newHTTPTransport(ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	tools, err := tr.ListTools(t.Context())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "search", tools[0].Name)
	require.Equal(t, "search the web", tools[0].Description)
}

func TestHTTPTransportCallToolReturnsExecutionFailedOnIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      1,
			Result: map[string]interface{}{
				"isError": true,
				"content": []interface{}{
					map[string]interface{}{"type": "text", "text": "boom"},
				},
			},
		})
	}))
	defer srv.Close()

	tr := newHTTPTransport(ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	_, err := tr.CallTool(t.Context(), "search", map[string]interface{}{"query": "x"})
	require.Error(t, err)
	require.Equal(t, gcserr.ExecutionFailed, gcserr.KindOf(err))
	require.Contains(t, err.Error(), "boom")
}

func TestHTTPTransportReadsSSEFramedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`)
		flusher.Flush()
	}))
	defer srv.Close()

	tr := newHTTPTransport(ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL, Timeout: 5 * time.Second})
	tools, err := tr.ListTools(t.Context())
	require.NoError(t, err)
	require.Empty(t, tools)
}

func TestHTTPTransportPropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      1,
			Error:   &rpcError{Code: -32601, Message: "method not found"},
		})
	}))
	defer srv.Close()

	tr := newHTTPTransport(ConnectParams{Transport: TransportStreamableHTTP, URL: srv.URL})
	_, err := tr.ListTools(t.Context())
	require.Error(t, err)
	require.Contains(t, err.Error(), "method not found")
}

func TestNewTransportRejectsUnknownKind(t *testing.T) {
	_, err := newTransport(ConnectParams{Transport: "carrier-pigeon"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported MCP transport")
}
