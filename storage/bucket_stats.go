package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// BucketStats aggregates object counts and sizes under a prefix.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	// ByExtension counts objects per file extension (".wav", ".json", ...).
	ByExtension map[string]int64
	// ByGroup counts objects per second path component, i.e. per title for
	// segment and annotation keys.
	ByGroup map[string]int64
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Stats walks every object under prefix and aggregates sizes, extensions and
// groups. Listing errors abort the walk.
func (m *MinioStore) Stats(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{
		ByExtension: make(map[string]int64),
		ByGroup:     make(map[string]int64),
	}
	var objects []ObjectInfo

	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("list %s: %w", prefix, object.Err)
		}
		info := ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		}
		stats.add(info)
		objects = append(objects, info)
	}
	return objects, stats, nil
}

func (s *BucketStats) add(obj ObjectInfo) {
	s.TotalObjects++
	s.TotalSize += obj.Size
	if obj.LastModified.After(s.LastModified) {
		s.LastModified = obj.LastModified
	}

	ext := strings.ToLower(path.Ext(obj.Key))
	if ext == "" {
		ext = "(none)"
	}
	s.ByExtension[ext]++

	if parts := strings.Split(obj.Key, "/"); len(parts) >= 3 {
		s.ByGroup[parts[1]]++
	}
}

// SortedGroups returns group names ordered by descending object count.
func (s *BucketStats) SortedGroups() []string {
	groups := make([]string, 0, len(s.ByGroup))
	for g := range s.ByGroup {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if s.ByGroup[groups[i]] != s.ByGroup[groups[j]] {
			return s.ByGroup[groups[i]] > s.ByGroup[groups[j]]
		}
		return groups[i] < groups[j]
	})
	return groups
}
