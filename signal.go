package orchard

import "sync"

// Signal is a synchronous notification channel. Handlers run on the
// notifying goroutine in subscription order.
type Signal[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []signalHandler[T]
}

type signalHandler[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function removing it again
func (s *Signal[T]) Subscribe(fn func(T)) (dispose func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, signalHandler[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, h := range s.handlers {
				if h.id == id {
					s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Signal[T]) Notify(v T) {
	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()
	for _, h := range handlers {
		h.fn(v)
	}
}

func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}
