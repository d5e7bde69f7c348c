// Package indexer maps metric names, tag keys and tag values to compact
// integer ids and back, so the storage and query layers stay string-free
package indexer

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Indexer is a bidirectional string <-> id interner
type Indexer interface {
	// ResolveWeak returns the id of name, or false if it has never been
	// indexed. It never fails: backend errors are reported as misses.
	ResolveWeak(ctx context.Context, name string) (int64, bool)

	// ReverseResolve returns the string an id was assigned to
	ReverseResolve(ctx context.Context, id int64) (string, error)
}

// Recorder is implemented by indexers that can assign new ids
type Recorder interface {
	Record(ctx context.Context, name string) (int64, error)
}

// ErrUnknownID is returned when reverse resolving an id that was never assigned
var ErrUnknownID = errors.New("unknown indexer id")

// UnresolvedID is used in query predicates for names that were never
// indexed; no stored row carries it
const UnresolvedID int64 = -1

// ResolveOrUnresolved resolves name, falling back to UnresolvedID
func ResolveOrUnresolved(ctx context.Context, idx Indexer, name string) int64 {
	if id, ok := idx.ResolveWeak(ctx, name); ok {
		return id
	}
	return UnresolvedID
}

// StaticIndexer is an in-memory indexer. It is safe for concurrent use.
type StaticIndexer struct {
	mu      sync.RWMutex
	byName  map[string]int64
	byID    map[int64]string
	counter int64
}

// NewStaticIndexer creates an in-memory indexer and records the given names
// in order, starting at id 1
func NewStaticIndexer(names ...string) *StaticIndexer {
	s := &StaticIndexer{
		byName: make(map[string]int64),
		byID:   make(map[int64]string),
	}
	for _, name := range names {
		s.record(name)
	}
	return s
}

// ResolveWeak returns the id of name
func (s *StaticIndexer) ResolveWeak(_ context.Context, name string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	return id, ok
}

// ReverseResolve returns the name of id
func (s *StaticIndexer) ReverseResolve(_ context.Context, id int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.byID[id]
	if !ok {
		return "", ErrUnknownID
	}
	return name, nil
}

// Record returns the id of name, assigning the next free id if needed
func (s *StaticIndexer) Record(_ context.Context, name string) (int64, error) {
	return s.record(name), nil
}

// Names returns every indexed name, sorted
func (s *StaticIndexer) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *StaticIndexer) record(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byName[name]; ok {
		return id
	}
	s.counter++
	s.byName[name] = s.counter
	s.byID[s.counter] = name
	return s.counter
}
