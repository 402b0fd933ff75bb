package cmd

import (
	"fmt"
	"os"

	"moorecollect/cache"
	"moorecollect/config"
	"moorecollect/core/assign"
	"moorecollect/logger"
	"moorecollect/storage"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "moorecollect",
	Short: "moorecollect collects Mooré transcriptions and translations of news audio.",
	Long: `moorecollect stages short audio segments in an object store, hands them
out to contributors for transcription and translation, and reports on the
collected annotations.`,
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and initialises the global logger.
func setup() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
	return cfg
}

// openStore connects to the bucket. Missing storage settings are fatal:
// nothing can run without them.
func openStore(cfg *config.Config) *storage.MinioStore {
	if err := cfg.ValidateStorage(); err != nil {
		logger.Fatal("storage is not configured", logger.ErrorField(err))
	}
	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		logger.Fatal("failed to create object store client", logger.ErrorField(err))
	}
	return store
}

// openStatusStore picks the completion cache backend. The returned func
// releases it.
func openStatusStore(cfg *config.Config, store storage.ObjectStore) (assign.StatusStore, func()) {
	switch cfg.StatusBackend {
	case "redis":
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Fatal("failed to connect to redis", logger.ErrorField(err))
		}
		return cache.NewRedisStatusStore(cache.RedisClient), func() {
			if err := cache.CloseRedis(); err != nil {
				logger.Warn("error closing redis", logger.ErrorField(err))
			}
		}
	case "object", "":
		return assign.NewObjectStatusStore(store), func() {}
	default:
		logger.Fatal("unknown STATUS_BACKEND, expected object or redis", logger.String("value", cfg.StatusBackend))
		return nil, nil
	}
}
