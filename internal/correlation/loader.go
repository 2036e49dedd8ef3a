package correlation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chen-001/gallery-app-clean/internal/analysis"
	"github.com/chen-001/gallery-app-clean/internal/cache"
	"github.com/chen-001/gallery-app-clean/internal/metrics"
)

// Format selects the on-disk table format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	// FormatXLSX reads the first worksheet of each workbook.
	FormatXLSX Format = "xlsx"
)

// DefaultFoldSuffix marks a table name as the fold view of its base table.
const DefaultFoldSuffix = "_fold"

// ErrInvalidName reports a dataset or table identifier that cannot address a file
// under the data root.
var ErrInvalidName = errors.New("invalid identifier")

// ParseFormat maps a config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "parquet", ".parquet":
		return FormatParquet, nil
	case "csv", ".csv":
		return FormatCSV, nil
	case "xlsx", ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported table format: %s (use parquet, csv or xlsx)", s)
	}
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatXLSX:
		return ".xlsx"
	default:
		return ".parquet"
	}
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Root       string
	Format     Format
	FoldSuffix string
	CacheTTL   time.Duration
}

type cachedTable struct {
	table   *analysis.Table
	size    int64
	modTime time.Time
}

// Loader resolves (dataset, table) identifiers to files under a data root and loads
// them as analysis tables. Loaded tables are cached until their file changes or the
// cache entry expires.
type Loader struct {
	root       string
	format     Format
	foldSuffix string
	cache      *cache.TTL[string, cachedTable]
	watcher    *cache.Watcher
	logger     *zap.Logger
}

// NewLoader returns a Loader. A zero CacheTTL disables caching.
func NewLoader(opt LoaderOptions, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opt.Format == "" {
		opt.Format = FormatParquet
	}
	if opt.FoldSuffix == "" {
		opt.FoldSuffix = DefaultFoldSuffix
	}
	l := &Loader{
		root:       opt.Root,
		format:     opt.Format,
		foldSuffix: opt.FoldSuffix,
		logger:     logger,
	}
	if opt.CacheTTL > 0 {
		l.cache = cache.NewTTL[string, cachedTable](opt.CacheTTL)
	}
	return l
}

// Root returns the data root directory.
func (l *Loader) Root() string { return l.root }

// AttachWatcher makes the loader subscribe each dataset directory it reads from, so
// file changes evict cached tables immediately.
func (l *Loader) AttachWatcher(w *cache.Watcher) { l.watcher = w }

// Evict drops the cached table for path.
func (l *Loader) Evict(path string) {
	if l.cache != nil && l.cache.Delete(path) {
		l.logger.Debug("evicted cached table", zap.String("path", path))
	}
}

// CleanupCache removes expired cache entries and returns how many were dropped.
func (l *Loader) CleanupCache() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.Cleanup()
}

func validIdent(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, os.PathSeparator)
}

// Path returns the file addressed by dataset and name.
func (l *Loader) Path(dataset, name string) (string, error) {
	if !validIdent(dataset) {
		return "", fmt.Errorf("%w: dataset %q", ErrInvalidName, dataset)
	}
	if !validIdent(name) {
		return "", fmt.Errorf("%w: table %q", ErrInvalidName, name)
	}
	return filepath.Join(l.root, dataset, name+l.format.Ext()), nil
}

// Load reads the raw table dataset/name. A missing file returns (nil, false, nil).
func (l *Loader) Load(dataset, name string) (*analysis.Table, bool, error) {
	path, err := l.Path(dataset, name)
	if err != nil {
		return nil, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("factor table not found", zap.String("path", path))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat table: %w", err)
	}
	if info.IsDir() {
		return nil, false, nil
	}
	if l.cache != nil {
		if c, ok := l.cache.Get(path); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
			metrics.ObserveCacheLookup(true)
			return c.table, true, nil
		}
		metrics.ObserveCacheLookup(false)
	}

	var tbl *analysis.Table
	switch l.format {
	case FormatCSV:
		tbl, err = analysis.ReadCSV(path, analysis.CSVOptions{})
	case FormatXLSX:
		tbl, err = analysis.ReadXLSX(path, analysis.XLSXOptions{})
	default:
		tbl, err = analysis.ReadParquet(path)
	}
	if err != nil {
		return nil, false, fmt.Errorf("load table %s/%s: %w", dataset, name, err)
	}
	tbl.Name = name

	if l.cache != nil {
		l.cache.Set(path, cachedTable{table: tbl, size: info.Size(), modTime: info.ModTime()}, 0)
	}
	if l.watcher != nil {
		if err := l.watcher.Watch(filepath.Dir(path)); err != nil {
			l.logger.Warn("cannot watch dataset directory", zap.String("dir", filepath.Dir(path)), zap.Error(err))
		}
	}
	l.logger.Debug("loaded factor table",
		zap.String("path", path),
		zap.Int("rows", tbl.NumRows()),
		zap.Int("cols", tbl.NumCols()))
	return tbl, true, nil
}

// Datasets lists the dataset directories under the data root.
func (l *Loader) Datasets() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read data root: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Tables lists the table names stored in dataset.
func (l *Loader) Tables(dataset string) ([]string, error) {
	if !validIdent(dataset) {
		return nil, fmt.Errorf("%w: dataset %q", ErrInvalidName, dataset)
	}
	entries, err := os.ReadDir(filepath.Join(l.root, dataset))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	ext := l.format.Ext()
	out := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(out)
	return out, nil
}
