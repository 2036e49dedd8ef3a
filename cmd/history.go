package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chen-001/gallery-app-clean/internal/history"
	"github.com/chen-001/gallery-app-clean/internal/utils"
)

var histJSON bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or prune saved correlation results",
}

// withHistory opens the configured store for the duration of fn.
func withHistory(fn func(*history.Store) error) error {
	c, err := ensureConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	store, closeStore, err := openHistory(c, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved results, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.Store) error {
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if histJSON {
				b, err := utils.PrettyJSON(records)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, string(b))
				return nil
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "(no history)")
				return nil
			}
			for _, r := range records {
				line := fmt.Sprintf("- %s  %s  %s: %s", r.ID, r.Timestamp.Local().Format(time.DateTime), r.Dataset, strings.Join(r.Tables, ", "))
				if len(r.Missing) > 0 {
					line += fmt.Sprintf(" (missing %d)", len(r.Missing))
				}
				fmt.Fprintln(w, line)
			}
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.Store) error {
			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if histJSON {
				b, err := utils.PrettyJSON(rec)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, string(b))
				return nil
			}
			fmt.Fprintf(w, "Saved: %s\n\n", rec.Timestamp.Local().Format(time.DateTime))
			fmt.Fprintln(w, rec.CorrMatrix().Markdown())
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one saved result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.Store) error {
			removed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%w: %s", history.ErrNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	historyCmd.PersistentFlags().BoolVar(&histJSON, "json", false, "print JSON")
}
