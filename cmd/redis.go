package cmd

import (
	"fmt"

	"moorecollect/cache"
	"moorecollect/logger"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the redis completion cache",
	Long:  `Connect to redis, run a read/write probe and print the titles cached as completed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Redis %s, DB %d\n", cfg.RedisAddr(), cfg.RedisDB)
		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				logger.Warn("error closing redis", logger.ErrorField(err))
			}
		}()

		if err := cache.ProbeRedis(ctx); err != nil {
			return fmt.Errorf("redis probe failed: %w", err)
		}
		fmt.Fprintln(out, "read/write probe ok")

		completed, err := cache.NewRedisStatusStore(cache.RedisClient).Completed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d titles cached as completed in %s\n", len(completed), cache.StatusHash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
