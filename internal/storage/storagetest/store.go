// Package storagetest provides an in-memory storage.ImageStore.
package storagetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/schemagraph/internal/storage"
)

type object struct {
	contentType string
	data        []byte
}

type Store struct {
	// PutErr makes every PutImage call fail.
	PutErr error

	mu      sync.Mutex
	objects map[string]object
}

func New() *Store {
	return &Store{objects: map[string]object{}}
}

func (s *Store) PutImage(ctx context.Context, key string, contentType string, data []byte) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{contentType: contentType, data: append([]byte(nil), data...)}
	return nil
}

func (s *Store) GetImage(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return obj.data, obj.contentType, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *Store) DownloadLink(ctx context.Context, key string) (string, error) {
	return "https://storage.test/" + key, nil
}

// Keys returns the stored object keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
