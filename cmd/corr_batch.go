package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chen-001/gallery-app-clean/internal/correlation"
	"github.com/chen-001/gallery-app-clean/internal/history"
)

var (
	cbTables []string
	cbSave   bool
	cbQuiet  bool
)

var corrBatchCmd = &cobra.Command{
	Use:   "corr-batch <dataset-pattern...>",
	Short: "Compute the same factor correlation across several datasets",
	Long: `Runs the correlation of --tables within every dataset matching the given glob
patterns (for example "v1*") and prints one matrix per dataset.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cbTables) < 2 {
			return fmt.Errorf("--tables needs at least 2 names")
		}
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(c)
		if err != nil {
			return err
		}
		defer logger.Sync()
		loader, err := newLoader(c, true, logger)
		if err != nil {
			return err
		}
		all, err := loader.Datasets()
		if err != nil {
			return err
		}

		var datasets []string
		seen := map[string]struct{}{}
		for _, pattern := range args {
			for _, ds := range all {
				ok, err := filepath.Match(pattern, ds)
				if err != nil {
					return fmt.Errorf("bad pattern %q: %w", pattern, err)
				}
				if !ok {
					continue
				}
				if _, dup := seen[ds]; dup {
					continue
				}
				seen[ds] = struct{}{}
				datasets = append(datasets, ds)
			}
		}
		if len(datasets) == 0 {
			return fmt.Errorf("no datasets matched")
		}
		sort.Strings(datasets)

		var store *history.Store
		if cbSave {
			s, closeStore, err := openHistory(c, logger)
			if err != nil {
				return err
			}
			defer closeStore()
			store = s
		}

		w := cmd.OutOrStdout()
		eng := correlation.NewEngine(loader, logger)
		total := len(datasets)
		failed := 0
		for i, ds := range datasets {
			if !cbQuiet {
				fmt.Fprintf(w, "[%d/%d] Processing %s...\n", i+1, total, ds)
			}
			res, err := eng.Correlate(cmd.Context(), correlation.Request{Dataset: ds, Tables: cbTables})
			if err != nil {
				return err
			}
			if !res.Success {
				failed++
				fmt.Fprintf(w, "⚠ %s: %s (missing: %s)\n", ds, res.Message, strings.Join(res.Missing, ", "))
				continue
			}
			fmt.Fprintln(w, res.CorrMatrix().Markdown())
			if store != nil {
				rec, err := store.Save(cmd.Context(), history.FromResult(res))
				if err != nil {
					return err
				}
				if !cbQuiet {
					fmt.Fprintf(w, "✓ Saved %s to history as %s\n", ds, rec.ID)
				}
			}
		}
		fmt.Fprintf(w, "✓ Processed %d dataset(s), %d without data\n", total, failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(corrBatchCmd)
	corrBatchCmd.Flags().StringSliceVarP(&cbTables, "tables", "t", nil, "comma-separated factor table names (repeatable)")
	corrBatchCmd.Flags().BoolVar(&cbSave, "save", false, "append each successful result to the correlation history")
	corrBatchCmd.Flags().BoolVarP(&cbQuiet, "quiet", "q", false, "suppress progress output")
}
