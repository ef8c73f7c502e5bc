package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/pkg/types"
)

func TestRecentModelsTouchOrdering(t *testing.T) {
	ctx := context.Background()
	recent := NewRecentModels(nil, 3)

	a := types.ModelRef{ProviderID: "openai", ModelID: "gpt-4o"}
	b := types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet-4-20250514"}
	c := types.ModelRef{ProviderID: "openai", ModelID: "gpt-5"}

	require.NoError(t, recent.Touch(ctx, a))
	require.NoError(t, recent.Touch(ctx, b))
	require.NoError(t, recent.Touch(ctx, c))

	assert.Equal(t, []types.ModelRef{c, b, a}, recent.List(ctx))

	// re-touching moves to front without duplicating
	require.NoError(t, recent.Touch(ctx, a))
	assert.Equal(t, []types.ModelRef{a, c, b}, recent.List(ctx))
}

func TestRecentModelsCapacityEviction(t *testing.T) {
	ctx := context.Background()
	recent := NewRecentModels(nil, 2)

	a := types.ModelRef{ProviderID: "p", ModelID: "m1"}
	b := types.ModelRef{ProviderID: "p", ModelID: "m2"}
	c := types.ModelRef{ProviderID: "p", ModelID: "m3"}

	require.NoError(t, recent.Touch(ctx, a))
	require.NoError(t, recent.Touch(ctx, b))
	require.NoError(t, recent.Touch(ctx, c))

	assert.Equal(t, []types.ModelRef{c, b}, recent.List(ctx))
}

func TestRecentModelsPersistence(t *testing.T) {
	ctx := context.Background()
	store := storage.New(t.TempDir())

	recent := NewRecentModels(store, 5)
	ref := types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet-4-20250514"}
	require.NoError(t, recent.Touch(ctx, ref))

	// a fresh instance over the same store sees the persisted list
	reloaded := NewRecentModels(store, 5)
	got := reloaded.List(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, ref, got[0])
}

func selectionRegistry() *Registry {
	reg := NewRegistry(nil)
	reg.Register(newMockProvider("anthropic", "Anthropic", []types.Model{
		{ID: "claude-sonnet-4-20250514", ProviderID: "anthropic"},
	}))
	reg.Register(newMockProvider("openai", "OpenAI", []types.Model{
		{ID: "gpt-4o", ProviderID: "openai"},
	}))
	return reg
}

func TestSelectModelPrefersCurrent(t *testing.T) {
	ctx := context.Background()
	reg := selectionRegistry()

	current := &types.ModelRef{ProviderID: "openai", ModelID: "gpt-4o"}
	m, err := SelectModel(ctx, reg, current, "anthropic/claude-sonnet-4-20250514", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", m.ID)
}

func TestSelectModelFallsToRecencyList(t *testing.T) {
	ctx := context.Background()
	reg := selectionRegistry()

	recent := NewRecentModels(nil, 5)
	require.NoError(t, recent.Touch(ctx, types.ModelRef{ProviderID: "gone", ModelID: "retired"}))
	require.NoError(t, recent.Touch(ctx, types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet-4-20250514"}))

	// invalid current, most-recent entry also invalid after the valid one
	// was pushed down — chain walks in order and picks the first valid
	require.NoError(t, recent.Touch(ctx, types.ModelRef{ProviderID: "gone", ModelID: "also-retired"}))

	current := &types.ModelRef{ProviderID: "nope", ModelID: "missing"}
	m, err := SelectModel(ctx, reg, current, "", recent)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", m.ID)
}

func TestSelectModelFallsToConfigDefault(t *testing.T) {
	ctx := context.Background()
	reg := selectionRegistry()

	m, err := SelectModel(ctx, reg, nil, "anthropic/claude-sonnet-4-20250514", NewRecentModels(nil, 5))
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", m.ID)
}

func TestSelectModelFallsToFirstProvider(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	reg.Register(newMockProvider("empty", "Empty", nil))
	reg.Register(newMockProvider("openai", "OpenAI", []types.Model{
		{ID: "gpt-4o", ProviderID: "openai"},
	}))

	m, err := SelectModel(ctx, reg, nil, "gone/missing", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", m.ID)
}

func TestSelectModelExhaustedChain(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	_, err := SelectModel(ctx, reg, nil, "", nil)
	assert.Error(t, err)
}
