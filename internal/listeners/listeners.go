// Package listeners keeps ordered sets of callbacks with explicit
// unsubscription handles.
package listeners

import "sync"

// Subscription represents a registered handler. Callers invoke Unsubscribe to
// stop receiving callbacks; calling it more than once is harmless.
type Subscription interface {
	Unsubscribe()
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

type entry[T any] struct {
	id      int
	handler T
}

// Set is a concurrency-safe, insertion-ordered collection of handlers.
// The zero value is ready to use.
type Set[T any] struct {
	mu      sync.RWMutex
	nextID  int
	entries []entry[T]
}

// Add registers handler and returns its subscription.
func (s *Set[T]) Add(handler T) Subscription {
	if s == nil {
		return noopSubscription{}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, entry[T]{id: id, handler: handler})
	s.mu.Unlock()

	return &subscription{cancel: func() { s.remove(id) }}
}

func (s *Set[T]) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

// Snapshot returns the current handlers in registration order. Handlers are
// invoked from the snapshot so they may unsubscribe while being called.
func (s *Set[T]) Snapshot() []T {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.handler
	}
	return out
}

// Len reports the number of registered handlers.
func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every handler.
func (s *Set[T]) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}
