package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DateColumn names the column that becomes the row index when present.
	DateColumn = "date"
	// pandasIndexColumn is the column pandas writes for an unnamed index.
	pandasIndexColumn = "__index_level_0__"
	// pandasUnnamedIndex is how pandas names a blank CSV header on re-read.
	pandasUnnamedIndex = "Unnamed: 0"
)

// CSVOptions controls CSV table reading.
type CSVOptions struct {
	// Delimiter for CSV. If 0, picks by extension (.tsv -> tab, otherwise comma).
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per column.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// ReadCSV loads a CSV/TSV file into a Table. The header row names the columns; a
// "date" column (or a pandas index column) becomes the row index, otherwise rows are
// keyed by their ordinal. Cells that do not parse as numbers become NaN.
func ReadCSV(path string, opt CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{Name: name}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	next := func() ([]string, bool, error) {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return rec, true, nil
	}
	return buildTable(name, header, next, opt, NormalizeDateKey)
}

// buildTable assembles a Table from a header and a row source. The index column is
// chosen by findIndexColumn and its cells are turned into keys by keyOf; every other
// column becomes an entity column with non-numeric cells stored as NaN. Without an
// explicit DecimalSeparator, each column picks its decimal mark from all its cells.
func buildTable(name string, header []string, next func() ([]string, bool, error), opt CSVOptions, keyOf func(string) string) (*Table, error) {
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	indexCol := findIndexColumn(header)

	var cols []string
	var colPos []int
	for i, h := range header {
		if i == indexCol {
			continue
		}
		cols = append(cols, h)
		colPos = append(colPos, i)
	}

	var records [][]string
	for line := 1; ; line++ {
		rec, ok, err := next()
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if !ok {
			break
		}
		records = append(records, rec)
	}

	colOpt := make([]CSVOptions, len(cols))
	for j, pos := range colPos {
		colOpt[j] = opt
		if opt.DecimalSeparator == 0 {
			colOpt[j].DecimalSeparator = detectDecimal(records, pos)
		}
	}

	rows := make([]string, len(records))
	values := make([][]float64, len(records))
	for i, rec := range records {
		rows[i] = strconv.Itoa(i)
		if indexCol >= 0 && indexCol < len(rec) {
			rows[i] = keyOf(rec[indexCol])
		}
		vals := make([]float64, len(cols))
		for j, pos := range colPos {
			vals[j] = math.NaN()
			if pos >= len(rec) {
				continue
			}
			if x, ok := parseNumeric(rec[pos], colOpt[j]); ok {
				vals[j] = x
			}
		}
		values[i] = vals
	}
	return NewTable(name, rows, cols, values)
}

// findIndexColumn returns the position of the index column, or -1. A "date" column
// wins, then a pandas index column, then a blank first header as written by pandas
// for an unnamed index.
func findIndexColumn(header []string) int {
	for i, h := range header {
		if strings.EqualFold(h, DateColumn) {
			return i
		}
	}
	for i, h := range header {
		if h == pandasIndexColumn {
			return i
		}
	}
	if len(header) > 1 && (header[0] == "" || header[0] == pandasUnnamedIndex) {
		return 0
	}
	return -1
}

// detectDecimal picks the decimal mark of column pos. A cell settles it when the mark
// cannot be a thousands separator ("1,5", "1.234,5", "1.234.567"); columns with no
// such cell use '.', so "1,234" reads as 1234.
func detectDecimal(records [][]string, pos int) rune {
	for _, rec := range records {
		if pos >= len(rec) {
			continue
		}
		raw := strings.TrimSpace(rec[pos])
		c, d := strings.LastIndex(raw, ","), strings.LastIndex(raw, ".")
		switch {
		case c >= 0 && d >= 0:
			if c > d {
				return ','
			}
			return '.'
		case c >= 0:
			if strings.Count(raw, ",") > 1 {
				return '.'
			}
			if digitsAfter(raw, c) != 3 {
				return ','
			}
		case d >= 0:
			if strings.Count(raw, ".") > 1 {
				return ','
			}
			if digitsAfter(raw, d) != 3 {
				return '.'
			}
		}
	}
	return '.'
}

func digitsAfter(s string, i int) int {
	n := 0
	for _, r := range s[i+1:] {
		if r < '0' || r > '9' {
			break
		}
		n++
	}
	return n
}

// NormalizeDateKey rewrites recognised date spellings as YYYY-MM-DD so keys from
// different files compare equal. Unrecognised keys are returned trimmed.
func NormalizeDateKey(s string) string {
	s = strings.TrimSpace(s)
	if t, ok := parseTimeMaybe(s); ok {
		return formatDateKey(t)
	}
	return s
}

func formatDateKey(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func sniffDelimiter(path string) rune {
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".tsv") {
		return '\t'
	}
	return ','
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "20060102", "2006/01/02",
		"2006-01-02 15:04", "2006-01-02 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string, opt CSVOptions) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	switch strings.ToLower(raw) {
	case "nan", "na", "null", "none":
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		if cpos >= 0 && dpos >= 0 {
			if cpos > dpos {
				dec = ','
				thou = '.'
			} else {
				dec = '.'
				thou = ','
			}
		} else if cpos >= 0 {
			dec = ','
		} else {
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
