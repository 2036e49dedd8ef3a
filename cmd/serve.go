package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chen-001/gallery-app-clean/internal/cache"
	"github.com/chen-001/gallery-app-clean/internal/correlation"
	"github.com/chen-001/gallery-app-clean/internal/metrics"
	"github.com/chen-001/gallery-app-clean/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the correlation API, history and event feed over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") && serveAddr != "" {
			c.ListenAddr = serveAddr
		}
		logger, err := newLogger(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}

		loader, err := newLoader(c, true, logger)
		if err != nil {
			return err
		}
		watcher, err := cache.NewWatcher(loader, logger)
		if err != nil {
			logger.Warn("file watcher unavailable, relying on cache expiry", zap.Error(err))
		} else {
			defer watcher.Close()
			loader.AttachWatcher(watcher)
		}

		store, closeStore, err := openHistory(c, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		hub := server.NewHub(c.WSMaxClients, logger)
		srv := server.New(server.Options{
			Engine:   correlation.NewEngine(loader, logger),
			Catalog:  loader,
			History:  store,
			Hub:      hub,
			Gatherer: prometheus.DefaultGatherer,
			Logger:   logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("gallery server starting",
			zap.String("listen_addr", c.ListenAddr),
			zap.String("data_root", loader.Root()),
			zap.String("history_backend", c.HistoryBackend))
		err = srv.Run(ctx, server.RunOptions{
			Addr:            c.ListenAddr,
			MetricsAddr:     c.MetricsAddr,
			GracefulTimeout: c.GracefulTimeout(),
			Janitor: func() {
				if n := loader.CleanupCache(); n > 0 {
					logger.Debug("expired cached tables", zap.Int("count", n))
				}
			},
			JanitorInterval: janitorInterval(c.CacheTTL()),
		})
		if err != nil {
			return err
		}
		logger.Info("gallery server stopped")
		return nil
	},
}

func janitorInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr)")
}
