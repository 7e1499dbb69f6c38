package orchard

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// TestCacheBasicOperations tests the basic operations of the SimpleCache
func TestCacheBasicOperations(t *testing.T) {
	const capacity = 10
	cache := FactoryNewCache[string](capacity)

	items := []string{"item1", "item2", "item3", "item4", "item5"}
	indices := make([]int, len(items))

	for i, item := range items {
		index, err := cache.Register(item, item)
		if err != nil {
			t.Errorf("Failed to register item %s: %v", item, err)
		}
		indices[i] = index

		// Indices start at 0 and increment
		if index != i {
			t.Errorf("Index for item %s is %d, expected %d", item, index, i)
		}
	}

	for i, item := range items {
		index, found := cache.GetIndex(item)
		if !found {
			t.Errorf("Item %s not found in cache", item)
		}
		if index != indices[i] {
			t.Errorf("Index for item %s is %d, expected %d", item, index, indices[i])
		}
	}

	for i, item := range items {
		cachedItem := cache.GetItem(indices[i])
		if cachedItem == nil || *cachedItem != item {
			t.Errorf("Item at index %d is %v, expected %s", indices[i], cachedItem, item)
		}
	}

	for i, item := range items {
		cachedItem := cache.GetItem32(uint32(indices[i]))
		if cachedItem == nil || *cachedItem != item {
			t.Errorf("Item at index %d is %v, expected %s", indices[i], cachedItem, item)
		}
	}

	if _, found := cache.GetIndex("nonexistent"); found {
		t.Errorf("Found non-existent item in cache")
	}
	if item := cache.GetItem(len(items)); item != nil {
		t.Errorf("GetItem past the end returned %v, want nil", *item)
	}
	if cache.Len() != len(items) {
		t.Errorf("Len() = %d, want %d", cache.Len(), len(items))
	}
}

// TestCacheCapacity tests the cache capacity limits
func TestCacheCapacity(t *testing.T) {
	const capacity = 5
	cache := FactoryNewCache[int](capacity)

	for i := 1; i <= capacity; i++ {
		key := fmt.Sprintf("item%d", i)
		if _, err := cache.Register(key, i); err != nil {
			t.Errorf("Failed to register item %s: %v", key, err)
		}
	}

	_, err := cache.Register("overflow", 100)
	var limitErr ComponentTypeLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Register over capacity error = %v, want ComponentTypeLimitError", err)
	}
	if limitErr.Limit != capacity {
		t.Errorf("Limit = %d, want %d", limitErr.Limit, capacity)
	}
}

func TestCacheDuplicateKey(t *testing.T) {
	cache := FactoryNewCache[int](4)
	if _, err := cache.Register("dup", 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, err := cache.Register("dup", 2)
	var dupErr DuplicateComponentTypeError
	if !errors.As(err, &dupErr) {
		t.Fatalf("Register duplicate error = %v, want DuplicateComponentTypeError", err)
	}
	if got := cache.GetItem(0); *got != 1 {
		t.Errorf("Duplicate registration overwrote item: got %d", *got)
	}
}

// TestCachePointerStability checks that handed out items survive growth
func TestCachePointerStability(t *testing.T) {
	cache := newSimpleCache[int](128)
	if _, err := cache.Register("first", 7); err != nil {
		t.Fatal(err)
	}
	first := cache.GetItem(0)
	for i := range 100 {
		if _, err := cache.Register(fmt.Sprintf("k%d", i), i); err != nil {
			t.Fatal(err)
		}
	}
	if first != cache.GetItem(0) || *first != 7 {
		t.Errorf("pointer to first item changed after growth")
	}
}

func TestCacheConcurrentRegister(t *testing.T) {
	const workers = 8
	const perWorker = 10
	cache := newSimpleCache[int](workers * perWorker)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				key := fmt.Sprintf("w%d-%d", w, i)
				if _, err := cache.Register(key, i); err != nil {
					t.Errorf("Register(%s) failed: %v", key, err)
				}
			}
		}()
	}
	wg.Wait()

	if cache.Len() != workers*perWorker {
		t.Errorf("Len() = %d, want %d", cache.Len(), workers*perWorker)
	}
	seen := make(map[int]bool)
	for w := range workers {
		for i := range perWorker {
			idx, ok := cache.GetIndex(fmt.Sprintf("w%d-%d", w, i))
			if !ok {
				t.Fatalf("key w%d-%d missing", w, i)
			}
			if seen[idx] {
				t.Fatalf("index %d handed out twice", idx)
			}
			seen[idx] = true
		}
	}
}

func TestCacheClear(t *testing.T) {
	cache := newSimpleCache[string](3)
	cache.Register("a", "a")
	cache.Register("b", "b")
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len() after Clear = %d", cache.Len())
	}
	if idx, err := cache.Register("a", "again"); err != nil || idx != 0 {
		t.Errorf("Register after Clear = (%d, %v), want (0, nil)", idx, err)
	}
}
