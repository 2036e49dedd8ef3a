package cmd

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	cfgpkg "github.com/chen-001/gallery-app-clean/internal/config"
	"github.com/chen-001/gallery-app-clean/internal/correlation"
	"github.com/chen-001/gallery-app-clean/internal/history"
	"github.com/chen-001/gallery-app-clean/internal/utils"
)

func newLogger(c *cfgpkg.Global) (*zap.Logger, error) {
	return utils.NewLogger(c.LogLevel, c.LogJSON)
}

// newLoader builds a table loader from config. Only long-running commands enable the cache.
func newLoader(c *cfgpkg.Global, cached bool, logger *zap.Logger) (*correlation.Loader, error) {
	format, err := correlation.ParseFormat(c.TableFormat)
	if err != nil {
		return nil, err
	}
	root, err := utils.ExpandHome(c.DataRoot)
	if err != nil {
		return nil, err
	}
	opt := correlation.LoaderOptions{Root: root, Format: format, FoldSuffix: c.FoldSuffix}
	if cached {
		opt.CacheTTL = c.CacheTTL()
	}
	return correlation.NewLoader(opt, logger), nil
}

// openHistory returns the configured history store and a closer for its backend.
func openHistory(c *cfgpkg.Global, logger *zap.Logger) (*history.Store, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(c.HistoryBackend)) {
	case "", "file", "json":
		path, err := utils.ExpandHome(c.HistoryFile)
		if err != nil {
			return nil, nil, err
		}
		return history.NewStore(history.NewFileBackend(path), c.HistoryLimit, logger), noop, nil
	case "sqlite":
		path, err := utils.ExpandHome(c.HistoryDB)
		if err != nil {
			return nil, nil, err
		}
		b, err := history.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return history.NewStore(b, c.HistoryLimit, logger), b.Close, nil
	case "memory":
		return history.NewStore(history.NewMemoryBackend(), c.HistoryLimit, logger), noop, nil
	default:
		return nil, nil, fmt.Errorf("invalid history_backend: %s (use file, sqlite or memory)", c.HistoryBackend)
	}
}
