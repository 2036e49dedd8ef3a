package analysis

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// XLSXOptions selects the worksheet read by ReadXLSX.
type XLSXOptions struct {
	// SheetName wins over SheetIndex when set.
	SheetName string
	// SheetIndex is 1-based; 0 means the first sheet.
	SheetIndex int
	CSVOptions
}

// ReadXLSX loads one worksheet of an .xlsx workbook into a Table, following the same
// index and numeric rules as ReadCSV. Serial-number dates in the index column are
// converted to YYYY-MM-DD.
func ReadXLSX(p string, opt XLSXOptions) (*Table, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()

	wb, err := openWorkbook(&zr.Reader)
	if err != nil {
		return nil, err
	}
	target, err := wb.sheetPath(opt.SheetName, opt.SheetIndex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
	}
	data, err := readZipEntry(&zr.Reader, target)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	rr := newSheetRowReader(data, wb.shared)
	header, ok := rr.Next()
	if !ok || len(header) == 0 {
		return &Table{Name: name}, nil
	}
	next := func() ([]string, bool, error) {
		row, ok := rr.Next()
		return row, ok, nil
	}
	return buildTable(name, header, next, opt.CSVOptions, excelDateKey)
}

// excelDateKey normalises an index cell, reading bare numbers in the plausible date
// serial range as days since 1899-12-30.
func excelDateKey(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 && f < 2958466 && !strings.ContainsAny(s, "eE") {
		if len(s) == 8 && !strings.Contains(s, ".") {
			// 20240102 style keys are dates already
			return NormalizeDateKey(s)
		}
		days := math.Floor(f)
		frac := f - days
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		t := epoch.AddDate(0, 0, int(days)).Add(time.Duration(frac * float64(24*time.Hour)).Round(time.Second))
		return formatDateKey(t)
	}
	return NormalizeDateKey(s)
}

type wbSheet struct {
	name    string
	sheetID int
	rid     string
}

type workbook struct {
	zr     *zip.Reader
	sheets []wbSheet
	rels   map[string]string
	shared []string
}

func openWorkbook(zr *zip.Reader) (*workbook, error) {
	wbXML, err := readZipEntry(zr, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	wb := &workbook{zr: zr, sheets: parseWorkbook(wbXML)}
	// relationships and shared strings are optional parts
	relsXML, _ := readZipEntry(zr, "xl/_rels/workbook.xml.rels")
	wb.rels = parseRelationships(relsXML)
	sharedXML, _ := readZipEntry(zr, "xl/sharedStrings.xml")
	wb.shared = parseSharedStrings(sharedXML)
	return wb, nil
}

// sheetPath resolves the zip entry of the requested worksheet.
func (wb *workbook) sheetPath(sheetName string, sheetIndex int) (string, error) {
	if sheetName != "" {
		names := make([]string, 0, len(wb.sheets))
		for _, s := range wb.sheets {
			if strings.EqualFold(s.name, sheetName) {
				if rel, ok := wb.rels[s.rid]; ok {
					return normalizeRelPath(rel), nil
				}
			}
			names = append(names, s.name)
		}
		return "", fmt.Errorf("sheet %q not found (available: %s)", sheetName, strings.Join(names, ", "))
	}
	idx := sheetIndex
	if idx <= 0 {
		idx = 1
	}
	for _, s := range wb.sheets {
		if s.sheetID == idx {
			if rel, ok := wb.rels[s.rid]; ok {
				return normalizeRelPath(rel), nil
			}
		}
	}
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", idx)), nil
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("xlsx part %s: %w", name, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read xlsx part %s: %w", name, err)
	}
	return b, nil
}

// xmlTokens feeds every token of data to fn until EOF, a decode error or fn returns false.
func xmlTokens(data []byte, fn func(xml.Token) bool) {
	if len(data) == 0 {
		return
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil || !fn(tok) {
			return
		}
	}
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// parseWorkbook extracts sheet entries with names and relationship ids.
func parseWorkbook(data []byte) []wbSheet {
	var sheets []wbSheet
	xmlTokens(data, func(tok xml.Token) bool {
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sheet" {
			sheets = append(sheets, wbSheet{
				name:    attr(se, "name"),
				sheetID: atoiSafe(attr(se, "sheetId")),
				rid:     attr(se, "id"),
			})
		}
		return true
	})
	return sheets
}

// parseRelationships maps relationship ids to their targets.
func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	xmlTokens(data, func(tok xml.Token) bool {
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			id, target := attr(se, "Id"), attr(se, "Target")
			if id != "" && target != "" {
				out[id] = target
			}
		}
		return true
	})
	return out
}

func parseSharedStrings(data []byte) []string {
	var out []string
	var buf strings.Builder
	inT := false
	xmlTokens(data, func(tok xml.Token) bool {
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
		return true
	})
	return out
}

// sheetRowReader streams the rows of a worksheet as string cells, placing each cell
// at the column given by its A1 reference.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

func (r *sheetRowReader) Next() ([]string, bool) {
	var row []string
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch {
			case se.Name.Local == "row":
				inRow = true
				row = nil
			case inRow && se.Name.Local == "c":
				col := colIndexFromRef(attr(se, "r"))
				if col < 0 {
					col = len(row)
				}
				val := r.cellValue(attr(se, "t"))
				if len(row) <= col {
					grown := make([]string, col+1)
					copy(grown, row)
					row = grown
				}
				row[col] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" && inRow {
				if row == nil {
					row = []string{}
				}
				return row, true
			}
		}
	}
}

// cellValue consumes tokens up to the end of the current <c> element and returns its
// text, resolving shared-string references.
func (r *sheetRowReader) cellValue(cellType string) string {
	var val strings.Builder
	inText := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				inText = true
			}
		case xml.CharData:
			if inText {
				val.Write(se)
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "v", "t":
				inText = false
			case "c":
				return r.resolve(cellType, val.String())
			}
		}
	}
	return r.resolve(cellType, val.String())
}

func (r *sheetRowReader) resolve(cellType, raw string) string {
	if cellType != "s" {
		return raw
	}
	idx := atoiSafe(raw)
	if idx >= 0 && idx < len(r.shared) {
		return r.shared[idx]
	}
	return ""
}

// colIndexFromRef turns an A1 reference into a 0-based column ("C12" -> 2), or -1.
func colIndexFromRef(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}

// normalizeRelPath converts relationship targets to zip entry names. Targets may
// carry a leading slash or be relative to xl/.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
