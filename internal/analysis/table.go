package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Table is a named, date-indexed numeric matrix. Rows are dates, columns are entities.
// Missing cells hold NaN. Tables are treated as immutable: every operation returns a copy.
type Table struct {
	Name   string
	Rows   []string    // row keys, unique
	Cols   []string    // column keys, unique
	Values [][]float64 // row-major, Values[i][j]
}

var (
	// ErrShape reports a body whose dimensions disagree with its row/column keys.
	ErrShape = errors.New("table shape mismatch")
	// ErrDuplicateKey reports a repeated row or column key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// NewTable validates the keys and body and returns a Table.
func NewTable(name string, rows, cols []string, values [][]float64) (*Table, error) {
	if len(values) != len(rows) {
		return nil, fmt.Errorf("%w: %d rows, %d value rows", ErrShape, len(rows), len(values))
	}
	for i, r := range values {
		if len(r) != len(cols) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(r), len(cols))
		}
	}
	if k, dup := firstDuplicate(rows); dup {
		return nil, fmt.Errorf("%w: row %q", ErrDuplicateKey, k)
	}
	if k, dup := firstDuplicate(cols); dup {
		return nil, fmt.Errorf("%w: column %q", ErrDuplicateKey, k)
	}
	return &Table{Name: name, Rows: rows, Cols: cols, Values: values}, nil
}

func firstDuplicate(keys []string) (string, bool) {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return k, true
		}
		seen[k] = struct{}{}
	}
	return "", false
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.Cols) }

// mapRows applies fn to each row and returns a table with the same keys.
func (t *Table) mapRows(fn func([]float64) []float64) *Table {
	out := &Table{Name: t.Name, Rows: t.Rows, Cols: t.Cols, Values: make([][]float64, len(t.Values))}
	for i, row := range t.Values {
		out.Values[i] = fn(row)
	}
	return out
}

// RankRows replaces each row by the cross-sectional rank of its values (1-based,
// ties share their average rank). NaN cells stay NaN and do not take a rank.
func (t *Table) RankRows() *Table {
	return t.mapRows(rankAverage)
}

// FoldAbs replaces each value by its absolute distance from the row mean.
// The mean skips NaN cells; a row with no values stays all NaN.
func (t *Table) FoldAbs() *Table {
	return t.mapRows(func(row []float64) []float64 {
		mean := NanMean(row)
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = math.Abs(v - mean)
		}
		return out
	})
}

// SelectRows returns a copy restricted to keys, in the order given. Keys absent from
// the table are skipped.
func (t *Table) SelectRows(keys []string) *Table {
	idx := t.rowIndex()
	out := &Table{Name: t.Name, Cols: t.Cols}
	for _, k := range keys {
		i, ok := idx[k]
		if !ok {
			continue
		}
		out.Rows = append(out.Rows, k)
		out.Values = append(out.Values, t.Values[i])
	}
	return out
}

func (t *Table) rowIndex() map[string]int {
	idx := make(map[string]int, len(t.Rows))
	for i, k := range t.Rows {
		idx[k] = i
	}
	return idx
}

// IntersectRows returns the row keys present in both tables, ascending.
func IntersectRows(a, b *Table) []string {
	in := make(map[string]struct{}, len(a.Rows))
	for _, k := range a.Rows {
		in[k] = struct{}{}
	}
	var out []string
	for _, k := range b.Rows {
		if _, ok := in[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// RowCorrelations computes one Pearson coefficient per row key shared by a and b,
// using the columns both tables carry as paired samples. Pairs with a NaN on either
// side are dropped; rows left with fewer than 2 pairs or zero variance yield NaN.
// Results follow IntersectRows order.
func RowCorrelations(a, b *Table) []float64 {
	keys := IntersectRows(a, b)
	if len(keys) == 0 {
		return nil
	}
	// column alignment: positions in a and b of each shared column
	bCol := make(map[string]int, len(b.Cols))
	for j, c := range b.Cols {
		bCol[c] = j
	}
	var ia, ib []int
	for j, c := range a.Cols {
		if k, ok := bCol[c]; ok {
			ia = append(ia, j)
			ib = append(ib, k)
		}
	}
	aRow, bRow := a.rowIndex(), b.rowIndex()
	out := make([]float64, len(keys))
	xs := make([]float64, 0, len(ia))
	ys := make([]float64, 0, len(ia))
	for n, k := range keys {
		ra, rb := a.Values[aRow[k]], b.Values[bRow[k]]
		xs, ys = xs[:0], ys[:0]
		for p := range ia {
			x, y := ra[ia[p]], rb[ib[p]]
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			xs = append(xs, x)
			ys = append(ys, y)
		}
		out[n] = Pearson(xs, ys)
	}
	return out
}

// Pearson returns the sample correlation of paired xs and ys, or NaN when fewer than
// 2 pairs remain or either side has zero variance.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return math.NaN()
	}
	var mx, my float64
	for i := 0; i < n; i++ {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	denom := math.Sqrt(sxx * syy)
	if denom == 0 {
		return math.NaN()
	}
	r := sxy / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}

// NanMean returns the arithmetic mean of the non-NaN values, or NaN when there are none.
func NanMean(vals []float64) float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// rankAverage ranks the non-NaN entries of row, assigning tied values their average rank.
func rankAverage(row []float64) []float64 {
	out := make([]float64, len(row))
	idx := make([]int, 0, len(row))
	for j, v := range row {
		if math.IsNaN(v) {
			out[j] = math.NaN()
			continue
		}
		idx = append(idx, j)
	}
	sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] < row[idx[b]] })
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && row[idx[end]] == row[idx[start]] {
			end++
		}
		// positions start..end-1 hold ranks start+1..end
		avg := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			out[idx[k]] = avg
		}
		start = end
	}
	return out
}
