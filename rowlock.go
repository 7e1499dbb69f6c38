package orchard

import (
	"sync"
	"sync/atomic"
)

// rowLock serializes access to one entity's components. The counters track
// current holders so tests can assert that a writer never overlaps another
// holder. The enabled flag is read by iteration without taking mu.
type rowLock struct {
	mu      sync.RWMutex
	readers atomic.Int32
	writers atomic.Int32
	enabled atomic.Bool
}

func newRowLock(enabled bool) *rowLock {
	l := &rowLock{}
	l.enabled.Store(enabled)
	return l
}

func (l *rowLock) lock(write bool) {
	if write {
		l.mu.Lock()
		l.writers.Add(1)
		return
	}
	l.mu.RLock()
	l.readers.Add(1)
}

func (l *rowLock) unlock(write bool) {
	if write {
		l.writers.Add(-1)
		l.mu.Unlock()
		return
	}
	l.readers.Add(-1)
	l.mu.RUnlock()
}

func (l *rowLock) holders() (readers, writers int32) {
	return l.readers.Load(), l.writers.Load()
}
