// Package server exposes the correlation engine and history store over HTTP/JSON with
// a WebSocket event feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chen-001/gallery-app-clean/internal/correlation"
	"github.com/chen-001/gallery-app-clean/internal/history"
	"github.com/chen-001/gallery-app-clean/internal/utils"
)

const maxBodyBytes = 1 << 20

// Catalog lists datasets and the tables inside them.
type Catalog interface {
	Datasets() ([]string, error)
	Tables(dataset string) ([]string, error)
}

// Options configures a Server.
type Options struct {
	Engine   *correlation.Engine
	Catalog  Catalog
	History  *history.Store
	Hub      *Hub
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server routes API requests to the correlation engine and history store.
type Server struct {
	engine   *correlation.Engine
	catalog  Catalog
	history  *history.Store
	hub      *Hub
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// New returns a Server. A nil Hub disables the WebSocket feed.
func New(opt Options) *Server {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opt.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		engine:   opt.Engine,
		catalog:  opt.Catalog,
		history:  opt.History,
		hub:      opt.Hub,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler returns the HTTP routes. When withMetrics is set, /metrics is served too.
func (s *Server) Handler(withMetrics bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/correlation", s.handleCorrelation)
	mux.HandleFunc("POST /api/correlation/v2", s.handleCorrelationV2)
	mux.HandleFunc("GET /api/correlation/history", s.handleHistoryList)
	mux.HandleFunc("POST /api/correlation/history", s.handleHistorySave)
	mux.HandleFunc("GET /api/correlation/history/{id}", s.handleHistoryGet)
	mux.HandleFunc("DELETE /api/correlation/history/{id}", s.handleHistoryDelete)
	mux.HandleFunc("GET /api/factors", s.handleDatasets)
	mux.HandleFunc("GET /api/factors/{dataset}", s.handleTables)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if withMetrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	return mux
}

type correlationV2Request struct {
	FactorList []correlation.FactorRef `json:"factor_list"`
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	var req correlation.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.engine.Correlate(r.Context(), req)
	s.finishCorrelation(w, res, err)
}

func (s *Server) handleCorrelationV2(w http.ResponseWriter, r *http.Request) {
	var req correlationV2Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.engine.CorrelateRefs(r.Context(), req.FactorList)
	s.finishCorrelation(w, res, err)
}

func (s *Server) finishCorrelation(w http.ResponseWriter, res correlation.Result, err error) {
	if err != nil {
		if errors.Is(err, correlation.ErrTooFewTables) {
			err = utils.NewAppError("correlate", err.Error(), http.StatusBadRequest, err)
		} else {
			err = utils.NewAppError("correlate", "correlation failed", http.StatusInternalServerError, err)
		}
		s.writeError(w, err)
		return
	}
	if res.Success && s.hub != nil {
		s.hub.Publish(EventCorrelationCompleted, map[string]any{
			"factor_version":  res.Dataset,
			"factor_names":    res.Tables,
			"missing_factors": res.Missing,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context())
	if err != nil {
		s.writeError(w, utils.NewAppError("history list", "failed to load history", http.StatusInternalServerError, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": records})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, history.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, utils.NewAppError("history get", "history record not found", status, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "record": rec})
}

func (s *Server) handleHistorySave(w http.ResponseWriter, r *http.Request) {
	var rec history.Record
	if err := decodeJSON(r, &rec); err != nil {
		s.writeError(w, err)
		return
	}
	saved, err := s.history.Save(r.Context(), rec)
	if err != nil {
		s.writeError(w, utils.NewAppError("history save", "failed to save history", http.StatusInternalServerError, err))
		return
	}
	if s.hub != nil {
		s.hub.Publish(EventHistorySaved, map[string]any{"id": saved.ID, "factor_version": saved.Dataset})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": saved.ID})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.history.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, utils.NewAppError("history delete", "failed to delete history", http.StatusInternalServerError, err))
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "history record not found"})
		return
	}
	if s.hub != nil {
		s.hub.Publish(EventHistoryDeleted, map[string]any{"id": id})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.Datasets()
	if err != nil {
		s.writeError(w, utils.NewAppError("list datasets", "failed to list datasets", http.StatusInternalServerError, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "datasets": names})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	dataset := r.PathValue("dataset")
	names, err := s.catalog.Tables(dataset)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, correlation.ErrInvalidName) {
			status = http.StatusBadRequest
		}
		s.writeError(w, utils.NewAppError("list tables", fmt.Sprintf("cannot list dataset %s", dataset), status, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "factor_version": dataset, "factors": names})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return utils.NewAppError("decode request", "invalid JSON body", http.StatusBadRequest, err)
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := utils.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Error(err))
	}
	writeJSON(w, status, map[string]any{"success": false, "message": utils.MessageOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RunOptions configures Run.
type RunOptions struct {
	Addr            string
	MetricsAddr     string
	GracefulTimeout time.Duration
	// Janitor, when set, runs every JanitorInterval until shutdown.
	Janitor         func()
	JanitorInterval time.Duration
}

// Run serves until ctx is cancelled, then shuts the listeners down gracefully.
func (s *Server) Run(ctx context.Context, opt RunOptions) error {
	if opt.GracefulTimeout <= 0 {
		opt.GracefulTimeout = 10 * time.Second
	}
	servers := []*http.Server{{
		Addr:              opt.Addr,
		Handler:           s.Handler(opt.MetricsAddr == ""),
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if opt.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:         opt.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			s.logger.Info("http server listening", zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	if opt.Janitor != nil && opt.JanitorInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opt.JanitorInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					opt.Janitor()
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down http servers")
		if s.hub != nil {
			s.hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opt.GracefulTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
