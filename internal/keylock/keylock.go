// Package keylock provides a set of mutexes addressed by key.
//
// Callers serialize work on one key without contending with other keys.
// Entries are reference counted and removed when the last holder unlocks,
// so the set does not grow with the number of keys ever seen.
package keylock

import "sync"

// Set is a collection of mutexes keyed by K. The zero value is ready to use.
type Set[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns the function that releases it.
//
//	unlock := set.Lock(id)
//	defer unlock()
func (s *Set[K]) Lock(key K) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[K]*entry)
	}
	e, ok := s.locks[key]
	if !ok {
		e = &entry{}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			s.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(s.locks, key)
			}
			s.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently locked or waited on.
func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
