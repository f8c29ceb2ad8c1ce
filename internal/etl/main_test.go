package etl

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/BartekS5/storefront-etl/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	m.Run()
}

// memStore is an in-memory ArtifactStore that counts writes.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStore) Put(_ context.Context, path, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.objects[path] = append([]byte(nil), data...)
	s.types[path] = contentType
	return nil
}

func (s *memStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}
