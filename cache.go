package orchard

import "sync"

var _ Cache[any] = &SimpleCache[any]{}

// SimpleCache is a bounded, append-only Cache safe for concurrent use.
// Indices are assigned in registration order starting at zero.
type SimpleCache[T any] struct {
	mu          sync.RWMutex
	items       []*T
	itemIndices map[string]int
	maxCapacity int
}

func newSimpleCache[T any](capacity int) *SimpleCache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: capacity,
	}
}

func (c *SimpleCache[T]) GetIndex(key string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index, ok := c.itemIndices[key]
	return index, ok
}

// GetItem returns nil for an index that was never registered
func (c *SimpleCache[T]) GetItem(index int) *T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.items) {
		return nil
	}
	return c.items[index]
}

func (c *SimpleCache[T]) GetItem32(index uint32) *T {
	return c.GetItem(int(index))
}

func (c *SimpleCache[T]) Register(key string, item T) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.itemIndices[key]; exists {
		return -1, DuplicateComponentTypeError{Name: key}
	}
	if len(c.items) >= c.maxCapacity {
		return -1, ComponentTypeLimitError{Limit: c.maxCapacity}
	}
	idx := len(c.items)
	c.itemIndices[key] = idx
	// Items are boxed so pointers handed out stay valid as the cache grows.
	c.items = append(c.items, &item)
	return idx, nil
}

func (c *SimpleCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *SimpleCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.itemIndices = make(map[string]int)
}
