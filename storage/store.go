package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the only contract the core depends on: per-key atomic
// put/get, prefix listing and time-limited read URLs. There are no
// transactions or conditional writes.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key under prefix in lexical order, following
	// pagination until the listing is exhausted.
	List(ctx context.Context, prefix string) ([]string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
