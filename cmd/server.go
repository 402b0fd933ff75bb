package cmd

import (
	"moorecollect/core/assign"
	"moorecollect/core/ledger"
	"moorecollect/core/segments"
	"moorecollect/logger"
	"moorecollect/server"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collection API",
	Long:  `Start the HTTP API contributors use to pick titles, listen to segments and submit annotations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}

		store := openStore(cfg)
		if err := store.Ping(cmd.Context()); err != nil {
			logger.Fatal("object store unreachable", logger.String("bucket", store.Bucket()), logger.ErrorField(err))
		}
		status, closeStatus := openStatusStore(cfg, store)
		defer closeStatus()

		l := ledger.New(store)
		a := assign.New(segments.NewReader(store, cfg.S3Prefix), l, status)
		h := server.NewHandler(a, l, store, cfg.PresignTTL)

		logger.Info("starting collection api",
			logger.String("addr", cfg.HTTPAddr),
			logger.String("bucket", store.Bucket()),
			logger.String("prefix", cfg.S3Prefix),
			logger.String("statusBackend", cfg.StatusBackend))
		return server.Start(cmd.Context(), cfg.HTTPAddr, server.NewRouter(h))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
}
