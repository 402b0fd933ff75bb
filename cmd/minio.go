package cmd

import (
	"fmt"
	"sort"

	"moorecollect/logger"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioList   bool
	minioGroups int
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the bucket",
	Long:  `Connect to the bucket and show object counts and sizes per extension and per title, or list objects under a prefix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()
		ctx := cmd.Context()

		store := openStore(cfg)
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("bucket %s unreachable: %w", store.Bucket(), err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Bucket %s at %s\n", store.Bucket(), cfg.S3Endpoint)

		objects, st, err := store.Stats(ctx, minioPrefix)
		if err != nil {
			return err
		}

		if minioList {
			rows := make([][]string, 0, len(objects))
			for _, o := range objects {
				rows = append(rows, []string{o.Key, humanize.Bytes(uint64(o.Size)), humanize.Time(o.LastModified)})
			}
			fmt.Fprintln(out, renderTable([]string{"Key", "Size", "Modified"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft}))
		}

		last := "-"
		if !st.LastModified.IsZero() {
			last = humanize.Time(st.LastModified)
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Objects", "Size", "Last write"},
			[][]string{{humanize.Comma(st.TotalObjects), humanize.Bytes(uint64(st.TotalSize)), last}},
			[]columnAlignment{alignRight, alignRight, alignLeft},
		))

		exts := make([]string, 0, len(st.ByExtension))
		for ext := range st.ByExtension {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		extRows := make([][]string, 0, len(exts))
		for _, ext := range exts {
			extRows = append(extRows, []string{ext, humanize.Comma(st.ByExtension[ext])})
		}
		fmt.Fprintln(out, renderTable([]string{"Extension", "Objects"}, extRows,
			[]columnAlignment{alignLeft, alignRight}))

		groups := st.SortedGroups()
		if minioGroups > 0 && len(groups) > minioGroups {
			groups = groups[:minioGroups]
		}
		groupRows := make([][]string, 0, len(groups))
		for _, g := range groups {
			groupRows = append(groupRows, []string{g, humanize.Comma(st.ByGroup[g])})
		}
		fmt.Fprintln(out, renderTable([]string{"Title", "Objects"}, groupRows,
			[]columnAlignment{alignLeft, alignRight}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "only objects under this prefix")
	minioCmd.Flags().BoolVarP(&minioList, "list", "l", false, "list every object")
	minioCmd.Flags().IntVar(&minioGroups, "groups", 20, "number of titles to show (0 for all)")
}
