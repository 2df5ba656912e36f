package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

func newTestRegistry(t *testing.T, def toolregistry.ToolDefinition) *toolregistry.Registry {
	t.Helper()
	reg := toolregistry.New()
	require.NoError(t, reg.Register(def))
	return reg
}

func searchSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"query"},
	}
}

type fakeExternal struct {
	calls int
	err   error
}

func (f *fakeExternal) CallTool(ctx context.Context, serverID, name string, args map[string]interface{}) (map[string]interface{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"echo": args["query"]}, nil
}

func TestExecuteRoutesLocalTool(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "echo", Kind: toolregistry.KindLocal, ApprovalPolicy: toolregistry.ApprovalNone, Parameters: searchSchema(),
	})
	mgr := New(reg, Config{Mode: ModeYOLO})
	mgr.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"out": args["query"]}, nil
	})

	result, err := mgr.Execute(t.Context(), "echo", map[string]interface{}{"query": "hi"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "hi", result.Output["out"])
}

func TestExecuteRoutesExternalTool(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "search", Kind: toolregistry.KindExternal, Origin: "server-1", ApprovalPolicy: toolregistry.ApprovalNone, Parameters: searchSchema(),
	})
	ext := &fakeExternal{}
	mgr := New(reg, Config{External: ext})

	result, err := mgr.Execute(t.Context(), "search", map[string]interface{}{"query": "golang"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, ext.calls)
	require.Equal(t, "golang", result.Output["echo"])
}

func TestExecuteFailsForUnknownTool(t *testing.T) {
	reg := toolregistry.New()
	mgr := New(reg, Config{})

	_, err := mgr.Execute(t.Context(), "missing", nil)
	require.Error(t, err)
	require.Equal(t, gcserr.ToolNotFound, gcserr.KindOf(err))
}

func TestExecuteFailsValidation(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "search", Kind: toolregistry.KindLocal, ApprovalPolicy: toolregistry.ApprovalNone, Parameters: searchSchema(),
	})
	mgr := New(reg, Config{})
	mgr.RegisterHandler("search", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})

	_, err := mgr.Execute(t.Context(), "search", map[string]interface{}{})
	require.Error(t, err)
	require.Equal(t, gcserr.ValidationError, gcserr.KindOf(err))
}

func TestExecuteFailsNoRouteWhenExternalNotConfigured(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "search", Kind: toolregistry.KindExternal, Origin: "server-1", ApprovalPolicy: toolregistry.ApprovalNone, Parameters: searchSchema(),
	})
	mgr := New(reg, Config{})

	_, err := mgr.Execute(t.Context(), "search", map[string]interface{}{"query": "x"})
	require.Error(t, err)
	require.Equal(t, gcserr.NoRoute, gcserr.KindOf(err))
}

func TestExecuteWaitsForApprovalThenProceeds(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "dangerous", Kind: toolregistry.KindLocal, ApprovalPolicy: toolregistry.ApprovalRequired, Parameters: searchSchema(),
	})
	mgr := New(reg, Config{Mode: ModeDefault, ApprovalTimeout: 2 * time.Second})
	mgr.RegisterHandler("dangerous", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"done": true}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req, err := mgr.Approvals().Next(t.Context())
		require.NoError(t, err)
		require.Equal(t, "dangerous", req.ToolName)
		req.Resolve(true)
	}()

	result, err := mgr.Execute(t.Context(), "dangerous", map[string]interface{}{"query": "x"})
	wg.Wait()
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestExecuteFailsApprovalDenied(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "dangerous", Kind: toolregistry.KindLocal, ApprovalPolicy: toolregistry.ApprovalRequired, Parameters: searchSchema(),
	})
	mgr := New(reg, Config{Mode: ModeDefault, ApprovalTimeout: 2 * time.Second})
	mgr.RegisterHandler("dangerous", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"done": true}, nil
	})

	go func() {
		req, err := mgr.Approvals().Next(t.Context())
		require.NoError(t, err)
		req.Resolve(false)
	}()

	_, err := mgr.Execute(t.Context(), "dangerous", map[string]interface{}{"query": "x"})
	require.Error(t, err)
	require.Equal(t, gcserr.ApprovalDenied, gcserr.KindOf(err))
}

func TestExecuteApprovalTimesOut(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "dangerous", Kind: toolregistry.KindLocal, ApprovalPolicy: toolregistry.ApprovalRequired, Parameters: searchSchema(),
	})
	mgr := New(reg, Config{Mode: ModeDefault, ApprovalTimeout: 20 * time.Millisecond})
	mgr.RegisterHandler("dangerous", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})

	_, err := mgr.Execute(t.Context(), "dangerous", map[string]interface{}{"query": "x"})
	require.Error(t, err)
	require.Equal(t, gcserr.ApprovalTimeout, gcserr.KindOf(err))
}

func TestYOLOModeSkipsApproval(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "dangerous", Kind: toolregistry.KindLocal, ApprovalPolicy: toolregistry.ApprovalRequired, Parameters: searchSchema(),
	})
	mgr := New(reg, Config{Mode: ModeYOLO})
	mgr.RegisterHandler("dangerous", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"done": true}, nil
	})

	result, err := mgr.Execute(t.Context(), "dangerous", map[string]interface{}{"query": "x"})
	require.NoError(t, err)
	require.True(t, result.Success)
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *recordingRecorder) Record(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func TestExecuteRecordsEveryCall(t *testing.T) {
	reg := newTestRegistry(t, toolregistry.ToolDefinition{
		Name: "echo", Kind: toolregistry.KindLocal, ApprovalPolicy: toolregistry.ApprovalNone, Parameters: searchSchema(),
	})
	rec := &recordingRecorder{}
	mgr := New(reg, Config{Mode: ModeYOLO, Recorder: rec})
	mgr.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"out": "x"}, nil
	})

	_, err := mgr.Execute(t.Context(), "echo", map[string]interface{}{"query": "hi"})
	require.NoError(t, err)
	require.Len(t, rec.records, 1)
	require.Equal(t, "echo", rec.records[0].ToolName)
	require.True(t, rec.records[0].Result.Success)
}
