package analysis

import (
	"archive/zip"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeXLSX builds a minimal two-sheet workbook. The relationship for the first sheet
// uses a leading slash, which some writers emit.
func writeXLSX(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create xlsx: %v", err)
	}
	zw := zip.NewWriter(f)
	parts := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Factors" sheetId="1" r:id="rId1"/><sheet name="Notes" sheetId="2" r:id="rId2"/></sheets>
</workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="/xl/worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="worksheet" Target="worksheets/sheet2.xml"/>
</Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>date</t></si><si><t>c1</t></si><si><t>c2</t></si><si><t>c3</t></si><si><t>n/a</t></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="s"><v>2</v></c><c r="D1" t="s"><v>3</v></c></row>
<row r="2"><c r="A2"><v>45292</v></c><c r="B2"><v>1.5</v></c><c r="C2" t="s"><v>4</v></c><c r="D2"><v>3</v></c></row>
<row r="3"><c r="A3" t="inlineStr"><is><t>2024-01-02</t></is></c><c r="B3"><v>2</v></c><c r="D3"><v>-1</v></c></row>
</sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2"><v>7</v></c></row>
</sheetData></worksheet>`,
	}
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}
}

func TestReadXLSXFirstSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.xlsx")
	writeXLSX(t, path)

	tbl, err := ReadXLSX(path, XLSXOptions{})
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if tbl.Name != "momentum" {
		t.Fatalf("name = %q", tbl.Name)
	}
	if strings.Join(tbl.Rows, ",") != "2024-01-01,2024-01-02" {
		t.Fatalf("rows = %v", tbl.Rows)
	}
	if strings.Join(tbl.Cols, ",") != "c1,c2,c3" {
		t.Fatalf("cols = %v", tbl.Cols)
	}
	if tbl.Values[0][0] != 1.5 || !math.IsNaN(tbl.Values[0][1]) || tbl.Values[0][2] != 3 {
		t.Fatalf("row 0 = %v", tbl.Values[0])
	}
	// the missing C3 cell pads to NaN
	if tbl.Values[1][0] != 2 || !math.IsNaN(tbl.Values[1][1]) || tbl.Values[1][2] != -1 {
		t.Fatalf("row 1 = %v", tbl.Values[1])
	}
}

func TestReadXLSXSheetSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	writeXLSX(t, path)

	byName, err := ReadXLSX(path, XLSXOptions{SheetName: "notes"})
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	byIndex, err := ReadXLSX(path, XLSXOptions{SheetIndex: 2})
	if err != nil {
		t.Fatalf("by index: %v", err)
	}
	for _, tbl := range []*Table{byName, byIndex} {
		// no date column: rows keyed by ordinal
		if len(tbl.Rows) != 1 || tbl.Rows[0] != "0" || tbl.Cols[0] != "c1" || tbl.Values[0][0] != 7 {
			t.Fatalf("unexpected sheet 2 table: %+v", tbl)
		}
	}

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "missing"})
	if err == nil || !strings.Contains(err.Error(), "Factors, Notes") {
		t.Fatalf("expected sheet-not-found listing sheets, got %v", err)
	}
}

func TestExcelDateKey(t *testing.T) {
	cases := map[string]string{
		"45292":      "2024-01-01",
		"45292.5":    "2024-01-01T12:00:00Z",
		"20240105":   "2024-01-05",
		"2024/01/03": "2024-01-03",
		"label":      "label",
	}
	for in, want := range cases {
		if got := excelDateKey(in); got != want {
			t.Errorf("excelDateKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestXLSXRelationshipPathNormalization(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"styles.xml", "xl/styles.xml"},
	}
	for _, tt := range tests {
		if got := normalizeRelPath(tt.input); got != tt.expected {
			t.Errorf("normalizeRelPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestColIndexFromRef(t *testing.T) {
	for ref, want := range map[string]int{"A1": 0, "C12": 2, "Z3": 25, "AA7": 26, "": -1} {
		if got := colIndexFromRef(ref); got != want {
			t.Errorf("colIndexFromRef(%q) = %d, want %d", ref, got, want)
		}
	}
}
