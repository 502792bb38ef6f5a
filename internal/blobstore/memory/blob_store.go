// Package memory provides an in-memory BlobStore for tests and runs without
// object storage.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Object is one stored blob.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore keeps objects in a map keyed by path.
type BlobStore struct {
	mu      sync.Mutex
	objects map[string]Object
}

var _ scraper.BlobStore = (*BlobStore)(nil)

// New builds an empty BlobStore.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject stores data under path and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return "mem://" + path, nil
}

// Object returns a stored blob and whether it exists.
func (s *BlobStore) Object(path string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len reports the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
