package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/chen-001/gallery-app-clean/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile            string
	debug              bool
	flagDataRoot       string
	flagHistoryBackend string
	flagTableFormat    string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Gallery factor correlation toolkit",
	Long: `Gallery computes mean cross-sectional rank correlations between factor tables stored
under a data root, keeps a short history of results and serves both over HTTP.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.gallery/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDataRoot, "data-root", "", "directory holding <dataset>/<table> files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagHistoryBackend, "history-backend", "", "history backend: file | sqlite | memory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagTableFormat, "format", "", "table file format: parquet | csv | xlsx (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
	applyFlagOverrides()
}

// applyFlagOverrides copies explicitly set root flags onto cfg.
func applyFlagOverrides() {
	f := rootCmd.PersistentFlags()
	if f.Changed("data-root") && flagDataRoot != "" {
		cfg.DataRoot = flagDataRoot
	}
	if f.Changed("history-backend") && flagHistoryBackend != "" {
		cfg.HistoryBackend = flagHistoryBackend
	}
	if f.Changed("format") && flagTableFormat != "" {
		cfg.TableFormat = flagTableFormat
	}
	if debug {
		cfg.LogLevel = "debug"
	}
}

// ensureConfig loads configuration for commands run without Execute (tests, embedding).
func ensureConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	applyFlagOverrides()
	return cfg, nil
}
