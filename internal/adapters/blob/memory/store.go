// Package memory is the in-process blob store used in local mode and tests.
package memory

import (
	"context"
	"io"
	"sync"
)

type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// PutErr, if set, fails the next Put. Test hook for orphan-blob paths.
	PutErr error
}

func NewStore() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		err := s.PutErr
		s.PutErr = nil
		return err
	}
	s.blobs[path] = data
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, path)
	return nil
}

// Exists reports whether a blob is present. Tests only.
func (s *Store) Exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[path]
	return ok
}
