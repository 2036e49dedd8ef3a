package correlation

import (
	"github.com/chen-001/gallery-app-clean/internal/analysis"
)

// Request asks for the pairwise correlation of tables within one dataset.
type Request struct {
	Dataset string   `json:"factor_version"`
	Tables  []string `json:"factor_names"`
}

// FactorRef names a table together with the dataset it lives in.
type FactorRef struct {
	Name    string `json:"name"`
	Dataset string `json:"version"`
}

// Key returns the name@dataset label used for cross-dataset results.
func (r FactorRef) Key() string { return r.Name + "@" + r.Dataset }

// Result is the outcome of one correlation computation. Success is false only when
// no requested table could be loaded.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Dataset string          `json:"factor_version"`
	Tables  []string        `json:"factor_names"`
	Matrix  analysis.Matrix `json:"correlation_matrix"`
	Missing []string        `json:"missing_factors"`
}

// CorrMatrix returns the labelled matrix view used for rendering.
func (r Result) CorrMatrix() *analysis.CorrMatrix {
	return &analysis.CorrMatrix{
		Title:   r.Dataset,
		Columns: r.Tables,
		Values:  r.Matrix,
		Missing: r.Missing,
	}
}
