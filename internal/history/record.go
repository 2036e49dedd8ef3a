// Package history persists recent correlation results as a bounded, newest-first list.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chen-001/gallery-app-clean/internal/analysis"
	"github.com/chen-001/gallery-app-clean/internal/correlation"
)

// DefaultLimit is the number of records kept when no limit is configured.
const DefaultLimit = 50

// ErrNotFound reports a record id that is not in the history.
var ErrNotFound = errors.New("history record not found")

// Record is one saved correlation result.
type Record struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Dataset   string          `json:"factor_version"`
	Tables    []string        `json:"factor_names"`
	Matrix    analysis.Matrix `json:"correlation_matrix"`
	Missing   []string        `json:"missing_factors"`
}

// FromResult builds an unsaved record from a correlation result.
func FromResult(r correlation.Result) Record {
	return Record{
		Dataset: r.Dataset,
		Tables:  r.Tables,
		Matrix:  r.Matrix,
		Missing: r.Missing,
	}
}

// CorrMatrix returns the labelled matrix view used for rendering.
func (r Record) CorrMatrix() *analysis.CorrMatrix {
	return &analysis.CorrMatrix{Title: r.Dataset, Columns: r.Tables, Values: r.Matrix, Missing: r.Missing}
}

// NewID returns a short random record id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Backend loads and replaces the full history list. Records are ordered newest first.
type Backend interface {
	LoadAll(ctx context.Context) ([]Record, error)
	SaveAll(ctx context.Context, records []Record) error
}
