package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"moorecollect/core/assign"
	"moorecollect/core/ledger"
	"moorecollect/core/segments"
	"moorecollect/core/stats"
	"moorecollect/logger"

	"github.com/spf13/cobra"
)

var (
	statsJSON      bool
	statsRecompute bool
	statsTop       int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show annotation statistics",
	Long:  `Scan every annotation and print totals, the contributor ranking and daily contribution counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()
		ctx := cmd.Context()

		store := openStore(cfg)
		l := ledger.New(store)

		if statsRecompute {
			status, closeStatus := openStatusStore(cfg, store)
			defer closeStatus()
			a := assign.New(segments.NewReader(store, cfg.S3Prefix), l, status)
			completed, err := a.RecomputeCompletion(ctx)
			if err != nil {
				return fmt.Errorf("recompute completion: %w", err)
			}
			n := 0
			for _, done := range completed {
				if done {
					n++
				}
			}
			logger.Info("completion recomputed", logger.Int("titles", len(completed)), logger.Int("completed", n))
		}

		records, err := l.AllAnnotations(ctx)
		if err != nil {
			return err
		}
		summary := stats.Summarize(records)

		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		printSummary(out, summary, statsTop)
		return nil
	},
}

func printSummary(out io.Writer, s stats.Summary, top int) {
	if s.Annotations == 0 {
		fmt.Fprintln(out, "No annotations yet.")
		return
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Annotations", "Contributors", "Total (min)", "Average (min)"},
		[][]string{{
			fmt.Sprint(s.Annotations),
			fmt.Sprint(s.Contributors),
			fmt.Sprintf("%.2f", s.TotalMinutes),
			fmt.Sprintf("%.2f", s.AverageMinutes),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
	))

	rows := make([][]string, 0, len(s.Ranking))
	for i, c := range stats.TopContributors(s.Ranking, top) {
		share := 0.0
		if s.TotalMinutes > 0 {
			share = c.Minutes() / s.TotalMinutes * 100
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			c.User,
			fmt.Sprint(c.Count),
			fmt.Sprintf("%.2f", c.Minutes()),
			fmt.Sprintf("%.1f%%", share),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Contributor", "Segments", "Minutes", "Share"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight},
	))

	if len(s.Daily) == 0 {
		return
	}
	peak := 0
	for _, d := range s.Daily {
		peak = max(peak, d.Count)
	}
	daily := make([][]string, 0, len(s.Daily))
	for _, d := range s.Daily {
		bar := strings.Repeat("█", max(1, d.Count*30/peak))
		daily = append(daily, []string{d.Date, fmt.Sprint(d.Count), bar})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Date", "Contributions", ""},
		daily,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	))
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the summary as JSON")
	statsCmd.Flags().BoolVar(&statsRecompute, "recompute-status", false, "rebuild the title completion cache from the ledger first")
	statsCmd.Flags().IntVar(&statsTop, "top", stats.TopN, "number of contributors to list")
}
