package catalog

import (
	"context"
	"slices"
	"sync"
)

// Catalog is the read side of the item bank.
type Catalog interface {
	Query(ctx context.Context, f Filter) ([]Item, error)
}

// Memory is an in-memory Catalog, used by tests and for one-off files.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Item
	order []string
}

// NewMemory returns a catalog holding items. Later duplicates replace
// earlier ones.
func NewMemory(items ...Item) *Memory {
	m := &Memory{items: make(map[string]Item)}
	m.Put(items...)
	return m
}

// Put adds or replaces items.
func (m *Memory) Put(items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		if _, ok := m.items[it.ID]; !ok {
			m.order = append(m.order, it.ID)
		}
		m.items[it.ID] = it
	}
}

// Query returns matching items in insertion order.
func (m *Memory) Query(_ context.Context, f Filter) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Item
	for _, id := range m.order {
		if it := m.items[id]; f.Matches(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Matches reports whether it passes the filter.
func (f Filter) Matches(it Item) bool {
	if f.Domain != "" && it.Domain != f.Domain {
		return false
	}
	if len(f.Topics) > 0 && !slices.Contains(f.Topics, it.Topic) {
		return false
	}
	if f.Band != nil && !f.Band.Contains(it.Difficulty) {
		return false
	}
	return true
}
