package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/chen-001/gallery-app-clean/internal/config"
	"github.com/chen-001/gallery-app-clean/internal/correlation"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set gallery configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "data_root: %s\n", c.DataRoot)
		fmt.Fprintf(w, "table_format: %s\n", c.TableFormat)
		fmt.Fprintf(w, "fold_suffix: %s\n", c.FoldSuffix)
		fmt.Fprintf(w, "history_backend: %s\n", c.HistoryBackend)
		switch c.HistoryBackend {
		case "sqlite":
			fmt.Fprintf(w, "history_db: %s\n", c.HistoryDB)
		case "memory":
		default:
			fmt.Fprintf(w, "history_file: %s\n", c.HistoryFile)
		}
		fmt.Fprintf(w, "history_limit: %d\n", c.HistoryLimit)
		fmt.Fprintf(w, "cache_ttl_sec: %d\n", c.CacheTTLSec)
		fmt.Fprintf(w, "listen_addr: %s\n", c.ListenAddr)
		if c.MetricsAddr != "" {
			fmt.Fprintf(w, "metrics_addr: %s\n", c.MetricsAddr)
		}
		fmt.Fprintf(w, "graceful_timeout_sec: %d\n", c.GracefulTimeoutSec)
		fmt.Fprintf(w, "ws_max_clients: %d\n", c.WSMaxClients)
		fmt.Fprintf(w, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(w, "log_json: %t\n", c.LogJSON)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(c, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	positive := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return 0, fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "data_root":
		c.DataRoot = val
	case "table_format":
		f, perr := correlation.ParseFormat(val)
		if perr != nil {
			return perr
		}
		c.TableFormat = string(f)
	case "fold_suffix":
		if val == "" {
			return fmt.Errorf("fold_suffix cannot be empty")
		}
		c.FoldSuffix = val
	case "history_backend":
		switch v := strings.ToLower(val); v {
		case "file", "sqlite", "memory":
			c.HistoryBackend = v
		default:
			return fmt.Errorf("invalid history_backend: %s (use file, sqlite or memory)", val)
		}
	case "history_file":
		c.HistoryFile = val
	case "history_db":
		c.HistoryDB = val
	case "history_limit":
		c.HistoryLimit, err = positive()
	case "cache_ttl_sec":
		i, aerr := strconv.Atoi(val)
		if aerr != nil || i < 0 {
			return fmt.Errorf("invalid int for cache_ttl_sec: %v", val)
		}
		c.CacheTTLSec = i
	case "listen_addr":
		c.ListenAddr = val
	case "metrics_addr":
		c.MetricsAddr = val
	case "graceful_timeout_sec":
		c.GracefulTimeoutSec, err = positive()
	case "ws_max_clients":
		c.WSMaxClients, err = positive()
	case "log_level":
		c.LogLevel = val
	case "log_json":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for log_json: %w", perr)
		}
		c.LogJSON = b
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
