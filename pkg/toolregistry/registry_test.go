package toolregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
)

func searchSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"query"},
	}
}

func TestRegisterThenGet(t *testing.T) {
	r := New()
	def := ToolDefinition{Name: "search", Description: "search the web", Kind: KindLocal, Parameters: searchSchema()}
	require.NoError(t, r.Register(def))

	got, ok := r.Get("search")
	require.True(t, ok)
	require.Equal(t, "search", got.Name)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDefinition{Name: "search", Description: "v1", Kind: KindLocal}))
	require.NoError(t, r.Register(ToolDefinition{Name: "search", Description: "v2", Kind: KindLocal}))

	got, ok := r.Get("search")
	require.True(t, ok)
	require.Equal(t, "v2", got.Description)
	require.Len(t, r.SnapshotAll(), 1)
}

func TestUnregisterDetachesExternalTool(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDefinition{Name: "remote_tool", Kind: KindExternal, Origin: "server-1"}))
	require.NoError(t, r.Unregister("remote_tool"))

	_, ok := r.Get("remote_tool")
	require.False(t, ok)
}

func TestUnregisterOriginRemovesAllToolsFromServer(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDefinition{Name: "a", Kind: KindExternal, Origin: "server-1"}))
	require.NoError(t, r.Register(ToolDefinition{Name: "b", Kind: KindExternal, Origin: "server-1"}))
	require.NoError(t, r.Register(ToolDefinition{Name: "c", Kind: KindExternal, Origin: "server-2"}))

	require.NoError(t, r.UnregisterOrigin("server-1"))

	require.False(t, r.Has("a"))
	require.False(t, r.Has("b"))
	require.True(t, r.Has("c"))
}

func TestNotificationsFireOnAddUpdateRemove(t *testing.T) {
	r := New()
	ch := make(chan Notification, 10)
	r.Subscribe(ch)

	require.NoError(t, r.Register(ToolDefinition{Name: "x", Kind: KindLocal}))
	require.NoError(t, r.Register(ToolDefinition{Name: "x", Kind: KindLocal, Description: "updated"}))
	require.NoError(t, r.Unregister("x"))

	require.Equal(t, ToolAdded, (<-ch).Type)
	require.Equal(t, ToolUpdated, (<-ch).Type)
	require.Equal(t, ToolRemoved, (<-ch).Type)
}

func TestValidateParamsRejectsMissingRequiredField(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDefinition{Name: "search", Kind: KindLocal, Parameters: searchSchema()}))

	err := r.ValidateParams("search", map[string]interface{}{})
	require.Error(t, err)
	require.Equal(t, gcserr.ValidationError, gcserr.KindOf(err))
}

func TestValidateParamsAcceptsValidPayload(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDefinition{Name: "search", Kind: KindLocal, Parameters: searchSchema()}))

	err := r.ValidateParams("search", map[string]interface{}{"query": "golang"})
	require.NoError(t, err)
}

func TestUpdateFailsForUnknownTool(t *testing.T) {
	r := New()
	err := r.Update(ToolDefinition{Name: "missing", Kind: KindLocal})
	require.Error(t, err)
	require.Equal(t, gcserr.ToolNotFound, gcserr.KindOf(err))
}
