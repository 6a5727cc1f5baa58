package reactions

import "sync"

// Signal is a value holder with subscribe/notify semantics: the current
// value is readable synchronously and subscribers are notified on every Set.
// Callbacks run synchronously on the goroutine that called Set, outside the
// Signal's lock; they must not block.
type Signal[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]func(T)
	next  int
}

// NewSignal creates a Signal holding initial.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{
		value: initial,
		subs:  make(map[int]func(T)),
	}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores v and notifies all subscribers.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	fns := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn and returns a cancel function. Cancelling twice is
// a no-op.
func (s *Signal[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
