package cache

import (
	"context"
	"fmt"
	"time"

	"moorecollect/config"
	"moorecollect/logger"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the process-wide redis client, set by ConnectRedis.
var RedisClient *redis.Client

const probeKey = "moorecollect:probe"

// ConnectRedis opens the client and pings it.
func ConnectRedis(cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	logger.Info("redis connected", logger.String("addr", cfg.RedisAddr()), logger.Int("db", cfg.RedisDB))
	return nil
}

// CloseRedis closes the client if one is open.
func CloseRedis() error {
	if RedisClient != nil {
		err := RedisClient.Close()
		RedisClient = nil
		return err
	}
	return nil
}

// ProbeRedis runs a set/get/delete round trip against the connected server.
func ProbeRedis(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}

	const want = "ok"
	if err := RedisClient.Set(ctx, probeKey, want, time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}
	val, err := RedisClient.Get(ctx, probeKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if val != want {
		return fmt.Errorf("unexpected value from Redis: got %s", val)
	}
	if err := RedisClient.Del(ctx, probeKey).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}
	return nil
}
