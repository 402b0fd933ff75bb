package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"moorecollect/logger"

	"github.com/redis/go-redis/v9"
)

// StatusHash holds title -> "1" for every globally completed title.
const StatusHash = "moorecollect:titles:completed"

// RedisStatusStore keeps title completion in a redis hash. Each title is
// its own field, so concurrent marks from different sessions never clobber
// each other.
type RedisStatusStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisStatusStore uses StatusHash on client.
func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{client: client, key: StatusHash, timeout: 5 * time.Second}
}

func (s *RedisStatusStore) Completed(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read completion hash: %w", err)
	}
	return decodeStatus(fields), nil
}

func (s *RedisStatusStore) MarkCompleted(ctx context.Context, title string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.HSet(ctx, s.key, title, "1").Err(); err != nil {
		logger.Error("failed to mark title completed",
			logger.String("title", title),
			logger.ErrorField(err))
		return err
	}
	logger.Debug("title marked completed", logger.String("title", title))
	return nil
}

// decodeStatus keeps only fields whose value parses as true.
func decodeStatus(fields map[string]string) map[string]bool {
	out := make(map[string]bool, len(fields))
	for title, raw := range fields {
		done, err := strconv.ParseBool(raw)
		if err != nil {
			logger.Warn("ignoring malformed completion field",
				logger.String("title", title),
				logger.String("value", raw))
			continue
		}
		if done {
			out[title] = true
		}
	}
	return out
}
