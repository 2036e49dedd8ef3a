package correlation

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

var fiveDates = []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}

// writeCSVTable writes root/dataset/name.csv with a date column followed by cols.
func writeCSVTable(t *testing.T, root, dataset, name string, dates, cols []string, values [][]float64) {
	t.Helper()
	dir := filepath.Join(root, dataset)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var b strings.Builder
	b.WriteString("date," + strings.Join(cols, ",") + "\n")
	for i, d := range dates {
		cells := make([]string, len(values[i]))
		for j, v := range values[i] {
			cells[j] = fmt.Sprintf("%g", v)
		}
		b.WriteString(d + "," + strings.Join(cells, ",") + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(b.String()), 0o644))
}

type threeColRow struct {
	Date string  `parquet:"date"`
	C1   float64 `parquet:"c1"`
	C2   float64 `parquet:"c2"`
	C3   float64 `parquet:"c3"`
}

// writeParquetTable writes root/dataset/name.parquet with columns date,c1,c2,c3.
func writeParquetTable(t *testing.T, root, dataset, name string, dates []string, values [][]float64) {
	t.Helper()
	dir := filepath.Join(root, dataset)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	rows := make([]threeColRow, len(dates))
	for i, d := range dates {
		rows[i] = threeColRow{Date: d, C1: values[i][0], C2: values[i][1], C3: values[i][2]}
	}
	f, err := os.Create(filepath.Join(dir, name+".parquet"))
	require.NoError(t, err)
	w := parquet.NewGenericWriter[threeColRow](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// writePandasCSV writes root/dataset/name.csv the way DataFrame.to_csv does for an
// unnamed index: the first header cell is blank.
func writePandasCSV(t *testing.T, root, dataset, name string, dates []string, values [][]float64) {
	t.Helper()
	dir := filepath.Join(root, dataset)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var b strings.Builder
	b.WriteString(",c1,c2,c3\n")
	for i, d := range dates {
		fmt.Fprintf(&b, "%s,%g,%g,%g\n", d, values[i][0], values[i][1], values[i][2])
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(b.String()), 0o644))
}

type pandasRow struct {
	C1        float64   `parquet:"c1"`
	C2        float64   `parquet:"c2"`
	C3        float64   `parquet:"c3"`
	TradeDate time.Time `parquet:"trade_date"`
}

// writePandasParquet writes root/dataset/name.parquet with a timestamp index column
// named trade_date, declared through the pandas key-value metadata.
func writePandasParquet(t *testing.T, root, dataset, name string, dates []string, values [][]float64) {
	t.Helper()
	dir := filepath.Join(root, dataset)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	rows := make([]pandasRow, len(dates))
	for i, d := range dates {
		ts, err := time.Parse("2006-01-02", d)
		require.NoError(t, err)
		rows[i] = pandasRow{C1: values[i][0], C2: values[i][1], C3: values[i][2], TradeDate: ts}
	}
	f, err := os.Create(filepath.Join(dir, name+".parquet"))
	require.NoError(t, err)
	w := parquet.NewGenericWriter[pandasRow](f,
		parquet.KeyValueMetadata("pandas", `{"index_columns": ["trade_date"], "columns": []}`))
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// writeXLSXTable writes a single-sheet workbook with columns date,c1,c2,c3 using
// inline strings.
func writeXLSXTable(t *testing.T, path string, dates []string, values [][]float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	inline := func(ref, s string) string {
		return fmt.Sprintf(`<c r="%s" t="inlineStr"><is><t>%s</t></is></c>`, ref, s)
	}
	var sheet strings.Builder
	sheet.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	sheet.WriteString(`<row r="1">` + inline("A1", "date") + inline("B1", "c1") + inline("C1", "c2") + inline("D1", "c3") + `</row>`)
	for i, d := range dates {
		n := i + 2
		sheet.WriteString(fmt.Sprintf(`<row r="%d">`, n) + inline(fmt.Sprintf("A%d", n), d))
		for j, v := range values[i] {
			sheet.WriteString(fmt.Sprintf(`<c r="%c%d"><v>%g</v></c>`, 'B'+j, n, v))
		}
		sheet.WriteString(`</row>`)
	}
	sheet.WriteString(`</sheetData></worksheet>`)

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"xl/workbook.xml":            `<workbook xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets><sheet name="Sheet1" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships><Relationship Id="rId1" Target="worksheets/sheet1.xml"/></Relationships>`,
		"xl/worksheets/sheet1.xml":   sheet.String(),
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// alpha and beta cover five dates over c1..c3. Their per-date Spearman
// coefficients are 1, -0.5, 0.5, -0.5, 1, so the pair mean is 0.3.
var (
	alphaValues = [][]float64{
		{1, 2, 3},
		{3, 1, 2},
		{2, 3, 1},
		{1, 3, 2},
		{5, 4, 6},
	}
	betaValues = [][]float64{
		{10, 20, 30},
		{1, 2, 3},
		{3, 2, 1},
		{2, 1, 3},
		{8, 7, 9},
	}
)

const alphaBetaMean = 0.3
