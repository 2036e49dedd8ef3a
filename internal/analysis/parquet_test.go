package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

type factorRow struct {
	Date string  `parquet:"date"`
	C1   float64 `parquet:"c1"`
	C2   float64 `parquet:"c2"`
	C3   int64   `parquet:"c3"`
	Note string  `parquet:"note"`
}

func writeParquet[T any](t *testing.T, path string, rows []T, opts ...parquet.WriterOption) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create parquet: %v", err)
	}
	w := parquet.NewGenericWriter[T](f, opts...)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestReadParquetDateIndexAndNumericColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alpha.parquet")
	writeParquet(t, path, []factorRow{
		{Date: "2024-01-02", C1: 1.5, C2: 2, C3: 3, Note: "a"},
		{Date: "20240103", C1: 4, C2: 5, C3: 6, Note: "b"},
	})
	tbl, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if tbl.Name != "alpha" {
		t.Fatalf("name = %q", tbl.Name)
	}
	if strings.Join(tbl.Rows, ",") != "2024-01-02,2024-01-03" {
		t.Fatalf("rows = %v", tbl.Rows)
	}
	if tbl.NumCols() != 3 {
		t.Fatalf("expected the string column to be skipped, cols = %v", tbl.Cols)
	}
	pos := map[string]int{}
	for j, c := range tbl.Cols {
		pos[c] = j
	}
	if tbl.Values[0][pos["c1"]] != 1.5 || tbl.Values[1][pos["c3"]] != 6 {
		t.Fatalf("unexpected values: %v", tbl.Values)
	}
}

type ordinalRow struct {
	A float64 `parquet:"a"`
	B float64 `parquet:"b"`
}

func TestReadParquetWithoutIndexUsesOrdinals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.parquet")
	writeParquet(t, path, []ordinalRow{{A: 1, B: 2}, {A: 3, B: 4}, {A: 5, B: 6}})
	tbl, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if strings.Join(tbl.Rows, ",") != "0,1,2" {
		t.Fatalf("rows = %v", tbl.Rows)
	}
}

// pandasRow mirrors DataFrame.to_parquet output for a frame indexed by a named
// DatetimeIndex.
type pandasRow struct {
	C1        float64   `parquet:"c1"`
	C2        float64   `parquet:"c2"`
	TradeDate time.Time `parquet:"trade_date"`
}

const pandasMeta = `{"index_columns": ["trade_date"], "column_indexes": [], "columns": [` +
	`{"name": "c1", "pandas_type": "float64"}, {"name": "c2", "pandas_type": "float64"}, ` +
	`{"name": "trade_date", "pandas_type": "datetime"}], "pandas_version": "2.2.0"}`

func pandasRows() []pandasRow {
	return []pandasRow{
		{C1: 1, C2: 2, TradeDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{C1: 3, C2: 4, TradeDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
}

func TestReadParquetUsesPandasIndexMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.parquet")
	writeParquet(t, path, pandasRows(), parquet.KeyValueMetadata("pandas", pandasMeta))
	tbl, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if strings.Join(tbl.Rows, ",") != "2024-01-02,2024-01-03" {
		t.Fatalf("rows = %v", tbl.Rows)
	}
	if strings.Join(tbl.Cols, ",") != "c1,c2" {
		t.Fatalf("the index must not become an entity column, cols = %v", tbl.Cols)
	}
	if tbl.Values[1][0] != 3 || tbl.Values[1][1] != 4 {
		t.Fatalf("values = %v", tbl.Values)
	}
}

func TestReadParquetTimestampColumnIsIndexWithoutMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.parquet")
	writeParquet(t, path, pandasRows())
	tbl, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if strings.Join(tbl.Rows, ",") != "2024-01-02,2024-01-03" || strings.Join(tbl.Cols, ",") != "c1,c2" {
		t.Fatalf("unexpected table: rows=%v cols=%v", tbl.Rows, tbl.Cols)
	}
}

type datedTimestampRow struct {
	Date    string    `parquet:"date"`
	Updated time.Time `parquet:"updated"`
	C1      float64   `parquet:"c1"`
}

func TestReadParquetSkipsTimestampEntityColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stamped.parquet")
	writeParquet(t, path, []datedTimestampRow{
		{Date: "2024-01-02", Updated: time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC), C1: 7},
	})
	tbl, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if strings.Join(tbl.Rows, ",") != "2024-01-02" || strings.Join(tbl.Cols, ",") != "c1" {
		t.Fatalf("unexpected table: rows=%v cols=%v", tbl.Rows, tbl.Cols)
	}
}

func TestPandasIndexName(t *testing.T) {
	cases := []struct{ meta, want string }{
		{`{"index_columns": ["trade_date"]}`, "trade_date"},
		{`{"index_columns": [{"kind": "range", "name": null, "start": 0, "stop": 3, "step": 1}]}`, ""},
		{`{"index_columns": []}`, ""},
		{`not json`, ""},
	}
	for _, tc := range cases {
		if got := pandasIndexName(tc.meta); got != tc.want {
			t.Errorf("pandasIndexName(%s) = %q, want %q", tc.meta, got, tc.want)
		}
	}
}
