package correlation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/chen-001/gallery-app-clean/internal/analysis"
	"github.com/chen-001/gallery-app-clean/internal/metrics"
)

// MessageNoData is the failure message when none of the requested tables loaded.
const MessageNoData = "no usable factor data"

// ErrTooFewTables is returned when fewer than two tables are requested.
var ErrTooFewTables = errors.New("at least 2 factors are required")

// TableSource loads fold-processed tables and classifies names.
type TableSource interface {
	LoadProcessed(dataset, name string) (*analysis.Table, bool, error)
	IsFold(name string) bool
}

// Engine computes pairwise mean row-wise rank correlations between factor tables.
type Engine struct {
	src    TableSource
	logger *zap.Logger
}

// NewEngine returns an Engine reading tables from src.
func NewEngine(src TableSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{src: src, logger: logger}
}

type loadedTable struct {
	key   string
	table *analysis.Table
	fold  bool
}

// Correlate computes the matrix over req.Tables within req.Dataset. Tables that
// cannot be loaded are listed in Result.Missing; the result fails only when none
// loaded. Repeated names are kept, each occupying its own row and column.
func (e *Engine) Correlate(ctx context.Context, req Request) (Result, error) {
	if len(req.Tables) < 2 {
		return Result{}, ErrTooFewTables
	}
	refs := make([]FactorRef, len(req.Tables))
	for i, name := range req.Tables {
		refs[i] = FactorRef{Name: name, Dataset: req.Dataset}
	}
	return e.run(ctx, req.Dataset, refs, func(r FactorRef) string { return r.Name })
}

// CorrelateRefs computes the matrix over tables drawn from several datasets. Names in
// the result are labelled name@dataset.
func (e *Engine) CorrelateRefs(ctx context.Context, refs []FactorRef) (Result, error) {
	if len(refs) < 2 {
		return Result{}, ErrTooFewTables
	}
	return e.run(ctx, datasetLabel(refs), refs, FactorRef.Key)
}

func datasetLabel(refs []FactorRef) string {
	seen := make(map[string]struct{})
	var first string
	for _, r := range refs {
		if _, ok := seen[r.Dataset]; !ok {
			if len(seen) == 0 {
				first = r.Dataset
			}
			seen[r.Dataset] = struct{}{}
		}
	}
	if len(seen) == 1 {
		return first
	}
	return fmt.Sprintf("mixed(%d)", len(seen))
}

func (e *Engine) run(ctx context.Context, dataset string, refs []FactorRef, label func(FactorRef) string) (Result, error) {
	start := time.Now()
	res := Result{Dataset: dataset, Tables: []string{}, Missing: []string{}}

	loaded, missing, err := e.loadAll(ctx, refs, label)
	if err != nil {
		metrics.ObserveCorrelation(time.Since(start), metrics.OutcomeError, 0)
		return Result{}, err
	}
	res.Missing = missing
	if len(loaded) == 0 {
		res.Message = MessageNoData
		metrics.ObserveCorrelation(time.Since(start), metrics.OutcomeNoData, len(missing))
		e.logger.Info("no factor tables loaded", zap.String("dataset", dataset), zap.Strings("missing", missing))
		return res, nil
	}

	matrix, err := e.matrix(ctx, loaded)
	if err != nil {
		metrics.ObserveCorrelation(time.Since(start), metrics.OutcomeError, len(missing))
		return Result{}, err
	}
	for _, lt := range loaded {
		res.Tables = append(res.Tables, lt.key)
	}
	res.Matrix = matrix
	res.Success = true
	metrics.ObserveCorrelation(time.Since(start), metrics.OutcomeSuccess, len(missing))
	e.logger.Info("correlation matrix computed",
		zap.String("dataset", dataset),
		zap.Int("factors", len(loaded)),
		zap.Int("missing", len(missing)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (e *Engine) loadAll(ctx context.Context, refs []FactorRef, label func(FactorRef) string) ([]loadedTable, []string, error) {
	type memo struct {
		table *analysis.Table
		ok    bool
	}
	seen := make(map[FactorRef]memo)
	var loaded []loadedTable
	missing := []string{}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		m, done := seen[ref]
		if !done {
			tbl, ok, err := e.src.LoadProcessed(ref.Dataset, ref.Name)
			if err != nil {
				e.logger.Warn("factor table unusable", zap.String("dataset", ref.Dataset), zap.String("name", ref.Name), zap.Error(err))
				ok = false
			}
			m = memo{table: tbl, ok: ok}
			seen[ref] = m
		}
		if !m.ok {
			missing = append(missing, label(ref))
			continue
		}
		loaded = append(loaded, loadedTable{key: label(ref), table: m.table, fold: e.src.IsFold(ref.Name)})
	}
	return loaded, missing, nil
}

func (e *Engine) matrix(ctx context.Context, loaded []loadedTable) (analysis.Matrix, error) {
	n := len(loaded)
	m := analysis.NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r := pairCorrelation(loaded[i], loaded[j])
			m[i][j], m[j][i] = r, r
			e.logger.Debug("pair correlation",
				zap.String("a", loaded[i].key),
				zap.String("b", loaded[j].key),
				zap.Float64("r", r))
		}
	}
	return m, nil
}

// pairCorrelation aligns a and b on shared dates, ranks non-fold tables per row and
// averages the per-date Pearson coefficients. No shared dates yields NaN.
func pairCorrelation(a, b loadedTable) float64 {
	keys := analysis.IntersectRows(a.table, b.table)
	if len(keys) == 0 {
		return math.NaN()
	}
	ta, tb := a.table.SelectRows(keys), b.table.SelectRows(keys)
	if !a.fold {
		ta = ta.RankRows()
	}
	if !b.fold {
		tb = tb.RankRows()
	}
	return analysis.NanMean(analysis.RowCorrelations(ta, tb))
}
