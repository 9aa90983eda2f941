package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/smartcart/internal/cache"
)

// IDMap remembers which server id replaced each temp id, so mutations queued
// after an offline create can be rewritten before replay. It is persisted in
// the cache so a crash mid-drain does not orphan later mutations.
type IDMap struct {
	store *cache.Store
	ids   map[string]string
}

// LoadIDMap reads the persisted map.
func LoadIDMap(ctx context.Context, store *cache.Store) (*IDMap, error) {
	m := &IDMap{store: store, ids: map[string]string{}}
	if _, err := store.Get(ctx, cache.KeyIDMap, &m.ids); err != nil {
		return nil, fmt.Errorf("load id map: %w", err)
	}
	if m.ids == nil {
		m.ids = map[string]string{}
	}
	return m, nil
}

// Record maps tempID to serverID and persists the map.
func (m *IDMap) Record(ctx context.Context, tempID, serverID string) error {
	m.ids[tempID] = serverID
	return m.store.Put(ctx, cache.KeyIDMap, cache.CollectionMeta, m.ids)
}

// Resolve returns the server id for id, or id itself when unknown.
func (m *IDMap) Resolve(id string) string {
	if v, ok := m.ids[id]; ok {
		return v
	}
	return id
}

// Len returns the number of mappings.
func (m *IDMap) Len() int {
	return len(m.ids)
}

// Reset forgets every mapping.
func (m *IDMap) Reset(ctx context.Context) error {
	m.ids = map[string]string{}
	return m.store.Remove(ctx, cache.KeyIDMap)
}
