package cmd

import (
	"fmt"
	"time"

	"moorecollect/core/audio"
	"moorecollect/core/ingest"
	"moorecollect/logger"
	"moorecollect/storage"

	"github.com/spf13/cobra"
)

var (
	ingestChannel      string
	ingestKeywords     []string
	ingestSegmentMs    int
	ingestPrefix       string
	ingestSkipDownload bool
	ingestSkipUpload   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download, segment and publish channel audio",
	Long: `Discover the videos of a channel, keep those matching the keywords,
download their audio as WAV, cut it into fixed-length segments and upload the
segments to the bucket under the ingest prefix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()

		opts := ingest.OptionsFromConfig(cfg)
		if cmd.Flags().Changed("channel") {
			opts.ChannelURL = ingestChannel
		}
		if cmd.Flags().Changed("keywords") {
			opts.Keywords = ingestKeywords
		}
		if cmd.Flags().Changed("segment-ms") {
			opts.SegmentLength = time.Duration(ingestSegmentMs) * time.Millisecond
		}
		if cmd.Flags().Changed("prefix") {
			opts.Prefix = ingestPrefix
		}
		opts.SkipDownload = ingestSkipDownload
		opts.SkipUpload = ingestSkipUpload

		var store storage.ObjectStore
		if !opts.SkipUpload {
			store = openStore(cfg)
		}

		p := ingest.New(opts, ingest.ExecRunner, audio.NewFFmpegProcessor(cfg.FFmpegPath), store)
		report, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderTable(
			[]string{"Stage", "OK", "Failed"},
			[][]string{
				{"matched videos", fmt.Sprint(report.Matched), "-"},
				{"downloads", fmt.Sprint(len(report.Download.Files)), fmt.Sprint(len(report.Download.Failed))},
				{"segmented files", fmt.Sprint(report.Segments.Files - len(report.Segments.Failed)), fmt.Sprint(len(report.Segments.Failed))},
				{"chunks", fmt.Sprint(len(report.Segments.Chunks)), "-"},
				{"uploads", fmt.Sprintf("%d/%d", report.Publish.Succeeded, report.Publish.Attempted), fmt.Sprint(len(report.Publish.Failed))},
			},
			[]columnAlignment{alignLeft, alignRight, alignRight},
		))
		fmt.Fprintf(out, "run %s\n", report.RunID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestChannel, "channel", "", "channel URL (overrides INGEST_CHANNEL_URL)")
	ingestCmd.Flags().StringSliceVarP(&ingestKeywords, "keywords", "k", nil, "keywords to match in title or description")
	ingestCmd.Flags().IntVar(&ingestSegmentMs, "segment-ms", 0, "segment length in milliseconds")
	ingestCmd.Flags().StringVarP(&ingestPrefix, "prefix", "p", "", "object key prefix for published segments")
	ingestCmd.Flags().BoolVar(&ingestSkipDownload, "skip-download", false, "only segment files already in the input directory")
	ingestCmd.Flags().BoolVar(&ingestSkipUpload, "skip-upload", false, "keep segments local")
}
