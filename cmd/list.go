package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listDatasets bool
	listTables   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets or the factor tables in a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listDatasets == (listTables != "") { // either both set or neither
			return fmt.Errorf("specify exactly one of --datasets or --tables <dataset>")
		}
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		loader, err := newLoader(c, false, nil)
		if err != nil {
			return err
		}
		var names []string
		empty := "(no datasets)"
		if listDatasets {
			names, err = loader.Datasets()
		} else {
			names, err = loader.Tables(listTables)
			empty = "(no tables)"
		}
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(w, empty)
			return nil
		}
		for _, n := range names {
			fmt.Fprintf(w, "- %s\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listDatasets, "datasets", false, "list datasets under the data root")
	listCmd.Flags().StringVar(&listTables, "tables", "", "list factor tables in the named dataset")
}
