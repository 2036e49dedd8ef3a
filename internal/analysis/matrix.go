package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Matrix is a row-major square matrix. Undefined cells hold NaN in memory and
// travel as JSON null.
type Matrix [][]float64

// NewMatrix returns an n×n matrix with 1 on the diagonal and 0 elsewhere.
func NewMatrix(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// MarshalJSON encodes NaN and ±Inf cells as null.
func (m Matrix) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	out := make([][]*float64, len(m))
	for i, row := range m {
		out[i] = make([]*float64, len(row))
		for j := range row {
			v := row[j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out[i][j] = &v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null cells back to NaN.
func (m *Matrix) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*m = nil
		return nil
	}
	var raw [][]*float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode matrix: %w", err)
	}
	out := make(Matrix, len(raw))
	for i, row := range raw {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = math.NaN()
				continue
			}
			out[i][j] = *v
		}
	}
	*m = out
	return nil
}

// Symmetric reports whether m is square and m[i][j] == m[j][i], treating NaN as equal to NaN.
func (m Matrix) Symmetric() bool {
	for i := range m {
		if len(m[i]) != len(m) {
			return false
		}
		for j := range m[i] {
			a, b := m[i][j], m[j][i]
			if math.IsNaN(a) && math.IsNaN(b) {
				continue
			}
			if a != b {
				return false
			}
		}
	}
	return true
}

// CorrMatrix is a labelled correlation matrix plus the names that could not be loaded.
type CorrMatrix struct {
	Title   string
	Columns []string
	Values  Matrix
	Missing []string
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A, B string
	R    float64
}

// TopPairs lists the off-diagonal pairs ordered by |r| descending. Undefined pairs go last.
func (c *CorrMatrix) TopPairs(limit int) []PairCorr {
	var pairs []PairCorr
	n := len(c.Columns)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, PairCorr{A: c.Columns[i], B: c.Columns[j], R: c.Values[i][j]})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		ni, nj := math.IsNaN(pairs[i].R), math.IsNaN(pairs[j].R)
		if ni != nj {
			return nj
		}
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// Markdown renders a compact report of the matrix.
func (c *CorrMatrix) Markdown() string {
	var b strings.Builder
	b.WriteString("[FACTOR CORRELATION]\n")
	if c.Title != "" {
		b.WriteString(fmt.Sprintf("Dataset: %s\n", c.Title))
	}
	b.WriteString(fmt.Sprintf("Factors: %d\n", len(c.Columns)))

	if len(c.Columns) > 0 {
		b.WriteString("\n[MATRIX]\n")
		b.WriteString("| |")
		for _, name := range c.Columns {
			b.WriteString(" ")
			b.WriteString(safeVal(name))
			b.WriteString(" |")
		}
		b.WriteString("\n|---|")
		for range c.Columns {
			b.WriteString("---|")
		}
		b.WriteString("\n")
		for i, name := range c.Columns {
			b.WriteString("| ")
			b.WriteString(safeVal(name))
			b.WriteString(" |")
			for j := range c.Columns {
				b.WriteString(" ")
				b.WriteString(formatCell(c.Values[i][j]))
				b.WriteString(" |")
			}
			b.WriteString("\n")
		}
	}
	if pairs := c.TopPairs(10); len(pairs) > 0 {
		b.WriteString("\n[TOP PAIRS]\n")
		for _, p := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%s\n", p.A, p.B, formatCell(p.R)))
		}
	}
	if len(c.Missing) > 0 {
		b.WriteString("\n[MISSING]\n")
		for _, m := range c.Missing {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
