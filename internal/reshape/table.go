package reshape

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
)

// Fixed column names of the wide table.
const (
	ColumnName = "name"
	ColumnLat  = "lat"
	ColumnLng  = "lng"
)

// DefaultExportColumns is the column set delivered to the partner.
var DefaultExportColumns = []string{ColumnName, "rh", "t", ColumnLat, ColumnLng}

// WideTable is a rectangular string table with a header. Every row has
// len(Columns) cells.
type WideTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of data rows.
func (t *WideTable) Len() int {
	return len(t.Rows)
}

// Index returns the position of column name, or -1.
func (t *WideTable) Index(name string) int {
	return slices.Index(t.Columns, name)
}

// Narrow projects the table onto cols, in that order. Columns the table
// lacks are filled with empty cells; rows are never dropped.
func (t *WideTable) Narrow(cols []string) *WideTable {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.Index(c)
	}

	out := &WideTable{
		Columns: slices.Clone(cols),
		Rows:    make([][]string, 0, len(t.Rows)),
	}
	for _, row := range t.Rows {
		cells := make([]string, len(cols))
		for i, j := range idx {
			if j >= 0 {
				cells[i] = row[j]
			}
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

// Select keeps the rows whose name cell is one of names, preserving table
// order. An empty names list keeps every row.
func (t *WideTable) Select(names []string) *WideTable {
	out := &WideTable{
		Columns: slices.Clone(t.Columns),
		Rows:    make([][]string, 0, len(t.Rows)),
	}

	nameIdx := t.Index(ColumnName)
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	for _, row := range t.Rows {
		if len(want) > 0 {
			if nameIdx < 0 {
				continue
			}
			if _, ok := want[row[nameIdx]]; !ok {
				continue
			}
		}
		out.Rows = append(out.Rows, slices.Clone(row))
	}
	return out
}

// Records returns the header followed by every row.
func (t *WideTable) Records() [][]string {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Columns)
	records = append(records, t.Rows...)
	return records
}

// WriteCSV writes the header and rows as CSV.
func (t *WideTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
