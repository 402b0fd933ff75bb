package segments

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"moorecollect/core/keys"
	"moorecollect/logger"
	"moorecollect/storage"
)

// Reader lists staged audio segments grouped by title.
type Reader struct {
	store  storage.ObjectStore
	prefix string
}

// NewReader creates a reader over segments staged under prefix. The prefix
// is treated as a directory so sibling roots sharing its name stay out.
func NewReader(store storage.ObjectStore, prefix string) *Reader {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Reader{store: store, prefix: prefix}
}

// ListByTitle returns title -> segment keys, each in listing order. An
// empty bucket yields an empty map; only an unreachable store is an error.
func (r *Reader) ListByTitle(ctx context.Context) (map[string][]string, error) {
	all, err := r.store.List(ctx, r.prefix)
	if err != nil {
		return nil, fmt.Errorf("list segments under %q: %w", r.prefix, err)
	}

	grouped := make(map[string][]string)
	for _, key := range all {
		seg, ok := keys.ParseSegmentKey(key)
		if !ok {
			continue
		}
		grouped[seg.Title] = append(grouped[seg.Title], key)
	}

	logger.Debug("segments listed",
		logger.String("prefix", r.prefix),
		logger.Int("objects", len(all)),
		logger.Int("titles", len(grouped)))
	return grouped, nil
}

// Segments returns the keys staged for one title.
func (r *Reader) Segments(ctx context.Context, title string) ([]string, error) {
	grouped, err := r.ListByTitle(ctx)
	if err != nil {
		return nil, err
	}
	return grouped[title], nil
}

// Titles returns the group names sorted for stable presentation.
func Titles(grouped map[string][]string) []string {
	titles := make([]string, 0, len(grouped))
	for t := range grouped {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}
