// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"fmt"
	"sort"
	"sync"
)

// Lock names shared with the host application. The file backend's delete
// path takes all three.
const (
	LockPR     = "pr"
	LockDelete = "delete"
	LockTree   = "tree"
)

// Locker is a mutual-exclusion lock. *sync.Mutex satisfies it; hosts that
// re-enter delete while holding one of these locks must register
// reentrant lockers instead.
type Locker interface {
	Lock()
	Unlock()
}

// LockSet is a registry of named locks with one global acquisition order:
// the order in which they were registered.
type LockSet struct {
	mu    sync.Mutex
	rank  map[string]int
	locks []Locker
	names []string
}

// NewLockSet returns an empty lock set.
func NewLockSet() *LockSet {
	return &LockSet{rank: make(map[string]int)}
}

// Register adds a named lock at the end of the global order. Registering a
// name twice replaces the lock but keeps its position.
func (s *LockSet) Register(name string, l Locker) *LockSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.rank[name]; ok {
		s.locks[i] = l
		return s
	}
	s.rank[name] = len(s.locks)
	s.locks = append(s.locks, l)
	s.names = append(s.names, name)
	return s
}

// Names returns the registered names in acquisition order.
func (s *LockSet) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// Acquire locks the named locks in global order, whatever order the names
// are given in, and returns a function that unlocks them in reverse. The
// release function is safe to call more than once.
func (s *LockSet) Acquire(names ...string) (func(), error) {
	s.mu.Lock()
	idx := make([]int, 0, len(names))
	seen := make(map[int]bool, len(names))
	for _, n := range names {
		i, ok := s.rank[n]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("lock %q is not registered", n)
		}
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	held := make([]Locker, len(idx))
	for j, i := range idx {
		held[j] = s.locks[i]
	}
	s.mu.Unlock()

	for _, l := range held {
		l.Lock()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for j := len(held) - 1; j >= 0; j-- {
				held[j].Unlock()
			}
		})
	}, nil
}

var defaultLocks = sync.OnceValue(func() *LockSet {
	return NewLockSet().
		Register(LockPR, &sync.Mutex{}).
		Register(LockDelete, &sync.Mutex{}).
		Register(LockTree, &sync.Mutex{})
})

// DefaultLocks returns the process-wide pr/delete/tree lock set.
func DefaultLocks() *LockSet {
	return defaultLocks()
}
