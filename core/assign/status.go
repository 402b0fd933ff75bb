package assign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"moorecollect/core/keys"
	"moorecollect/logger"
	"moorecollect/storage"
)

// StatusStore caches which titles are globally completed. It is never the
// source of truth: completion can always be recomputed from the ledger, and
// a lost update only delays the next recomputation.
type StatusStore interface {
	Completed(ctx context.Context) (map[string]bool, error)
	MarkCompleted(ctx context.Context, title string) error
}

// ObjectStatusStore keeps the flat title -> bool record as one JSON object
// in the bucket. Concurrent updates are last-write-wins.
type ObjectStatusStore struct {
	store storage.ObjectStore
	key   string
}

// NewObjectStatusStore stores the record at keys.StatusKey.
func NewObjectStatusStore(store storage.ObjectStore) *ObjectStatusStore {
	return &ObjectStatusStore{store: store, key: keys.StatusKey}
}

func (s *ObjectStatusStore) Completed(ctx context.Context) (map[string]bool, error) {
	data, err := s.store.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	status := map[string]bool{}
	if err := json.Unmarshal(data, &status); err != nil {
		// a corrupt cache is rebuilt by the next MarkCompleted
		logger.Warn("ignoring malformed status record", logger.String("key", s.key), logger.ErrorField(err))
		return map[string]bool{}, nil
	}
	return status, nil
}

func (s *ObjectStatusStore) MarkCompleted(ctx context.Context, title string) error {
	status, err := s.Completed(ctx)
	if err != nil {
		return err
	}
	if status[title] {
		return nil
	}
	status[title] = true

	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.key, data, "application/json"); err != nil {
		return fmt.Errorf("write status record: %w", err)
	}
	return nil
}
