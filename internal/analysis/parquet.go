package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// parquetColumn describes one flat leaf column of a parquet file.
type parquetColumn struct {
	name string
	leaf int
	node parquet.Node
}

// ReadParquet loads a flat parquet file into a Table. The row index is, in order: the
// first index column named in the pandas metadata, a "date" column, the pandas
// __index_level_0__ column, then the first DATE or TIMESTAMP column. Without any of
// these, rows are keyed by their ordinal. Numeric leaf columns become entity columns;
// other leaves, including dates and timestamps, are ignored.
func ReadParquet(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	var leaves []parquetColumn
	for _, c := range pf.Root().Columns() {
		if c.Index() < 0 {
			// nested groups are not part of the table model
			continue
		}
		leaves = append(leaves, parquetColumn{name: c.Name(), leaf: c.Index(), node: c})
	}
	names := make([]string, len(leaves))
	for i, c := range leaves {
		names[i] = c.name
	}
	indexPos := -1
	if meta, ok := pf.Lookup(pandasMetadataKey); ok {
		if idx := pandasIndexName(meta); idx != "" {
			for i, n := range names {
				if n == idx {
					indexPos = i
					break
				}
			}
		}
	}
	if indexPos < 0 {
		indexPos = findIndexColumn(names)
	}
	if indexPos < 0 {
		for i, c := range leaves {
			if isTemporalNode(c.node) {
				indexPos = i
				break
			}
		}
	}

	var cols []string
	colOf := make(map[int]int) // leaf index -> table column
	indexLeaf := -1
	for i, c := range leaves {
		if i == indexPos {
			indexLeaf = c.leaf
			continue
		}
		if !isNumericNode(c.node) {
			continue
		}
		colOf[c.leaf] = len(cols)
		cols = append(cols, c.name)
	}
	var indexNode parquet.Node
	if indexPos >= 0 {
		indexNode = leaves[indexPos].node
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var keys []string
	var values [][]float64
	buf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				vals := make([]float64, len(cols))
				for j := range vals {
					vals[j] = math.NaN()
				}
				key := strconv.Itoa(len(keys))
				for _, v := range row {
					if v.Column() == indexLeaf {
						if !v.IsNull() {
							key = parquetKey(v, indexNode)
						}
						continue
					}
					j, ok := colOf[v.Column()]
					if !ok || v.IsNull() {
						continue
					}
					vals[j] = parquetFloat(v)
				}
				keys = append(keys, key)
				values = append(values, vals)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				rows.Close()
				return nil, fmt.Errorf("read parquet rows: %w", err)
			}
			if n == 0 {
				break
			}
		}
		rows.Close()
	}
	return NewTable(name, keys, cols, values)
}

const pandasMetadataKey = "pandas"

// pandasIndexName returns the first named index column recorded by pandas, or "".
// RangeIndex entries are objects rather than names and are skipped.
func pandasIndexName(meta string) string {
	var md struct {
		IndexColumns []json.RawMessage `json:"index_columns"`
	}
	if err := json.Unmarshal([]byte(meta), &md); err != nil {
		return ""
	}
	for _, raw := range md.IndexColumns {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			return name
		}
	}
	return ""
}

// isTemporalNode reports whether n carries a DATE, TIME or TIMESTAMP annotation.
func isTemporalNode(n parquet.Node) bool {
	lt := n.Type().LogicalType()
	return lt != nil && (lt.Date != nil || lt.Timestamp != nil || lt.Time != nil)
}

func isNumericNode(n parquet.Node) bool {
	if isTemporalNode(n) {
		return false
	}
	switch n.Type().Kind() {
	case parquet.Int32, parquet.Int64, parquet.Float, parquet.Double, parquet.Boolean:
		return true
	default:
		return false
	}
}

func parquetFloat(v parquet.Value) float64 {
	switch v.Kind() {
	case parquet.Double:
		return v.Double()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Boolean:
		if v.Boolean() {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

// parquetKey renders an index cell as a row key, honouring DATE and TIMESTAMP annotations.
func parquetKey(v parquet.Value, node parquet.Node) string {
	lt := node.Type().LogicalType()
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return NormalizeDateKey(string(v.ByteArray()))
	case parquet.Int32:
		if lt != nil && lt.Date != nil {
			return formatDateKey(time.Unix(int64(v.Int32())*86400, 0))
		}
		return NormalizeDateKey(strconv.FormatInt(int64(v.Int32()), 10))
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			unit := lt.Timestamp.Unit
			switch {
			case unit.Millis != nil:
				return formatDateKey(time.UnixMilli(v.Int64()))
			case unit.Micros != nil:
				return formatDateKey(time.UnixMicro(v.Int64()))
			default:
				return formatDateKey(time.Unix(0, v.Int64()))
			}
		}
		return NormalizeDateKey(strconv.FormatInt(v.Int64(), 10))
	default:
		return NormalizeDateKey(v.String())
	}
}
