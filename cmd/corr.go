package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/chen-001/gallery-app-clean/internal/config"
	"github.com/chen-001/gallery-app-clean/internal/correlation"
	"github.com/chen-001/gallery-app-clean/internal/history"
	"github.com/chen-001/gallery-app-clean/internal/utils"
)

var (
	corrOutputPath string
	corrJSON       bool
	corrSave       bool
)

var corrCmd = &cobra.Command{
	Use:   "corr <dataset> <table> <table>...",
	Short: "Compute the pairwise factor correlation matrix within one dataset",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := correlation.Request{Dataset: args[0], Tables: args[1:]}
		return runCorrelation(cmd, func(eng *correlation.Engine) (correlation.Result, error) {
			return eng.Correlate(cmd.Context(), req)
		})
	},
}

var corrRefsCmd = &cobra.Command{
	Use:   "corr-refs <table@dataset> <table@dataset>...",
	Short: "Compute the correlation matrix over tables drawn from different datasets",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		refs := make([]correlation.FactorRef, 0, len(args))
		for _, a := range args {
			ref, err := parseFactorRef(a)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		return runCorrelation(cmd, func(eng *correlation.Engine) (correlation.Result, error) {
			return eng.CorrelateRefs(cmd.Context(), refs)
		})
	},
}

func parseFactorRef(s string) (correlation.FactorRef, error) {
	i := strings.LastIndex(s, "@")
	if i <= 0 || i == len(s)-1 {
		return correlation.FactorRef{}, fmt.Errorf("invalid factor reference %q (want table@dataset)", s)
	}
	return correlation.FactorRef{Name: s[:i], Dataset: s[i+1:]}, nil
}

func runCorrelation(cmd *cobra.Command, compute func(*correlation.Engine) (correlation.Result, error)) error {
	c, err := ensureConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	loader, err := newLoader(c, false, logger)
	if err != nil {
		return err
	}
	res, err := compute(correlation.NewEngine(loader, logger))
	if err != nil {
		return err
	}

	var out []byte
	if corrJSON {
		if out, err = utils.PrettyJSON(res); err != nil {
			return err
		}
	} else {
		out = []byte(res.CorrMatrix().Markdown())
	}
	w := cmd.OutOrStdout()
	if corrOutputPath != "" {
		if err := os.WriteFile(corrOutputPath, out, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(w, "✓ Wrote correlation to %s\n", corrOutputPath)
	} else {
		fmt.Fprintln(w, string(out))
	}

	if !res.Success {
		return fmt.Errorf("%s (missing: %s)", res.Message, strings.Join(res.Missing, ", "))
	}
	if len(res.Missing) > 0 && !corrJSON {
		fmt.Fprintf(w, "⚠ %d factor(s) could not be loaded: %s\n", len(res.Missing), strings.Join(res.Missing, ", "))
	}
	if corrSave {
		return saveResult(cmd, c, res, w, logger)
	}
	return nil
}

func saveResult(cmd *cobra.Command, c *cfgpkg.Global, res correlation.Result, w io.Writer, logger *zap.Logger) error {
	store, closeStore, err := openHistory(c, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	rec, err := store.Save(cmd.Context(), history.FromResult(res))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Saved to history as %s\n", rec.ID)
	return nil
}

func init() {
	rootCmd.AddCommand(corrCmd)
	rootCmd.AddCommand(corrRefsCmd)
	for _, c := range []*cobra.Command{corrCmd, corrRefsCmd} {
		c.Flags().StringVarP(&corrOutputPath, "output", "o", "", "optional path to write the result")
		c.Flags().BoolVar(&corrJSON, "json", false, "print the result as JSON")
		c.Flags().BoolVar(&corrSave, "save", false, "append the result to the correlation history")
	}
}
