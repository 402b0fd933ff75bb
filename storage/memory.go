package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore. It backs tests and dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	types     map[string]string
	getErrors map[string]error
	putErrors map[string]error
	listErr   error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:   make(map[string][]byte),
		types:     make(map[string]string),
		getErrors: make(map[string]error),
		putErrors: make(map[string]error),
	}
}

// FailGet makes every Get of key return err.
func (s *MemoryStore) FailGet(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErrors[key] = err
}

// FailPut makes every Put of key return err.
func (s *MemoryStore) FailPut(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErrors[key] = err
}

// FailList makes every List return err.
func (s *MemoryStore) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putErrors[key]; err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.objects[key] = append([]byte(nil), data...)
	s.types[key] = contentType
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.getErrors[key]; err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listErr != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, s.listErr)
	}
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("presign %s: %w", key, ErrNotFound)
	}
	return fmt.Sprintf("memory:///%s?ttl=%d", url.PathEscape(key), int(ttl.Seconds())), nil
}

// ContentType returns the content type recorded for key.
func (s *MemoryStore) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[key]
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
