package r2client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// memStore is an in-memory Store with S3 conditional-write semantics.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	seq     int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), etags: make(map[string]string)}
}

func (s *memStore) put(key string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.seq++
	s.objects[key] = data
	s.etags[key] = fmt.Sprintf("etag-%d", s.seq)
	return s.etags[key], nil
}

func (s *memStore) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(key, body)
}

func (s *memStore) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), s.etags[key], nil
}

func (s *memStore) Head(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	etag, ok := s.etags[key]
	if !ok {
		return "", ErrNotFound
	}
	return etag, nil
}

func (s *memStore) PutIfNotExists(_ context.Context, key string, body io.Reader, _ string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return false, "", nil
	}
	etag, err := s.put(key, body)
	return err == nil, etag, err
}

func (s *memStore) PutIfMatch(_ context.Context, key string, body io.Reader, etag, _ string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.etags[key] != etag || etag == "" {
		return false, "", nil
	}
	newETag, err := s.put(key, body)
	return err == nil, newETag, err
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.etags, key)
	return nil
}
