// Package memory contains an in-memory archive store for tests.
package memory

import (
	"context"
	"sync"
)

// Object is one stored artifact.
type Object struct {
	ContentType string
	Data        []byte
}

// Store keeps artifacts in a map keyed by path.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New returns an empty memory Store.
func New() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Put records the artifact and returns a mem:// URI.
func (s *Store) Put(_ context.Context, path string, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[path] = Object{ContentType: contentType, Data: buf}
	return "mem://" + path, nil
}

// Get returns the stored artifact, if any.
func (s *Store) Get(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len reports how many artifacts are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
