package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/pkg/types"
)

// DefaultRecentCapacity bounds the recently-used model list.
const DefaultRecentCapacity = 10

var recentModelsKey = []string{"state", "models-recent"}

// RecentModels is the bounded most-recent-first list of models the user has
// switched to, persisted under state/models-recent.
type RecentModels struct {
	mu       sync.Mutex
	store    *storage.Storage
	capacity int
	loaded   bool
	refs     []types.ModelRef
}

// NewRecentModels creates a recency list backed by store. capacity <= 0
// uses DefaultRecentCapacity. A nil store keeps the list in memory only.
func NewRecentModels(store *storage.Storage, capacity int) *RecentModels {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentModels{store: store, capacity: capacity}
}

func (r *RecentModels) load(ctx context.Context) {
	if r.loaded {
		return
	}
	r.loaded = true
	if r.store == nil {
		return
	}
	var refs []types.ModelRef
	if err := r.store.Get(ctx, recentModelsKey, &refs); err == nil {
		if len(refs) > r.capacity {
			refs = refs[:r.capacity]
		}
		r.refs = refs
	}
}

// List returns the recency list, most recent first.
func (r *RecentModels) List(ctx context.Context) []types.ModelRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load(ctx)
	return append([]types.ModelRef(nil), r.refs...)
}

// Touch moves ref to the front of the list, evicting the oldest entry when
// the list is full, and persists the result.
func (r *RecentModels) Touch(ctx context.Context, ref types.ModelRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load(ctx)

	refs := make([]types.ModelRef, 0, len(r.refs)+1)
	refs = append(refs, ref)
	for _, existing := range r.refs {
		if existing == ref {
			continue
		}
		refs = append(refs, existing)
	}
	if len(refs) > r.capacity {
		refs = refs[:r.capacity]
	}
	r.refs = refs

	if r.store == nil {
		return nil
	}
	return r.store.Put(ctx, recentModelsKey, refs)
}

// SelectModel resolves the model to use by walking the fallback chain:
// the caller's current selection, each recency-list entry in order, the
// config-specified default, and finally the first model any provider
// advertises. The first candidate that validates against the registry wins.
func SelectModel(ctx context.Context, reg *Registry, current *types.ModelRef, configModel string, recent *RecentModels) (*types.Model, error) {
	if current != nil {
		if m, err := reg.GetModel(current.ProviderID, current.ModelID); err == nil {
			return m, nil
		}
	}

	if recent != nil {
		for _, ref := range recent.List(ctx) {
			if m, err := reg.GetModel(ref.ProviderID, ref.ModelID); err == nil {
				return m, nil
			}
		}
	}

	if configModel != "" {
		providerID, modelID := ParseModelString(configModel)
		if m, err := reg.GetModel(providerID, modelID); err == nil {
			return m, nil
		}
	}

	providers := reg.List()
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID() < providers[j].ID() })
	for _, prov := range providers {
		models := prov.Models()
		if len(models) == 0 {
			continue
		}
		m := models[0]
		return &m, nil
	}

	return nil, fmt.Errorf("no valid model: fallback chain exhausted")
}
