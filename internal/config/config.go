package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/chen-001/gallery-app-clean/internal/utils"
)

// Global configuration structure.
type Global struct {
	DataRoot    string `mapstructure:"data_root" yaml:"data_root"`
	TableFormat string `mapstructure:"table_format" yaml:"table_format"`
	FoldSuffix  string `mapstructure:"fold_suffix" yaml:"fold_suffix"`

	// History persistence
	HistoryBackend string `mapstructure:"history_backend" yaml:"history_backend"`
	HistoryFile    string `mapstructure:"history_file" yaml:"history_file"`
	HistoryDB      string `mapstructure:"history_db" yaml:"history_db"`
	HistoryLimit   int    `mapstructure:"history_limit" yaml:"history_limit"`

	CacheTTLSec int `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`

	// Server
	ListenAddr         string `mapstructure:"listen_addr" yaml:"listen_addr"`
	MetricsAddr        string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	GracefulTimeoutSec int    `mapstructure:"graceful_timeout_sec" yaml:"graceful_timeout_sec"`
	WSMaxClients       int    `mapstructure:"ws_max_clients" yaml:"ws_max_clients"`

	// Logging
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" yaml:"log_json"`
}

const (
	configDirName = ".gallery"
	envPrefix     = "GALLERY"
)

// Dir returns ~/.gallery.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// CacheTTL returns the table cache lifetime.
func (c *Global) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }

// GracefulTimeout returns the server shutdown grace period.
func (c *Global) GracefulTimeout() time.Duration {
	return time.Duration(c.GracefulTimeoutSec) * time.Second
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.gallery/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("data_root", "~/factor_data")
	v.SetDefault("table_format", "parquet")
	v.SetDefault("fold_suffix", "_fold")
	v.SetDefault("history_backend", "file")
	v.SetDefault("history_file", "~/.gallery/correlation_history.json")
	v.SetDefault("history_db", "~/.gallery/history.db")
	v.SetDefault("history_limit", 50)
	v.SetDefault("cache_ttl_sec", 300)
	v.SetDefault("listen_addr", "0.0.0.0:5202")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("graceful_timeout_sec", 10)
	v.SetDefault("ws_max_clients", 100)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Global) expandPaths() error {
	for _, p := range []*string{&c.DataRoot, &c.HistoryFile, &c.HistoryDB} {
		expanded, err := utils.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}
