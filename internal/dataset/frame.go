// Package dataset provides the tabular data consumed by the pipelines and the
// stores that resolve dataset identifiers into it.
package dataset

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Frame is rows of string cells under named columns. Numeric views are parsed
// on demand so that categorical targets survive loading.
type Frame struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

// NewFrame builds a frame, checking that column names are unique and every
// row has one cell per column.
func NewFrame(columns []string, rows [][]string) (*Frame, error) {
	names := make([]string, len(columns))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		names[i] = c
		index[c] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return &Frame{Columns: names, Rows: rows, index: index}, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Has reports whether the frame contains the named column.
func (f *Frame) Has(col string) bool {
	_, ok := f.index[col]
	return ok
}

// Missing returns the columns in cols that the frame does not contain.
func (f *Frame) Missing(cols ...string) []string {
	var missing []string
	for _, c := range cols {
		if !f.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Strings returns the raw cells of a column.
func (f *Frame) Strings(col string) ([]string, error) {
	i, ok := f.index[col]
	if !ok {
		return nil, fmt.Errorf("column %q not in dataset", col)
	}
	out := make([]string, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Floats parses a column as float64.
func (f *Frame) Floats(col string) ([]float64, error) {
	cells, err := f.Strings(col)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for r, cell := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %q is not numeric", col, r, cell)
		}
		out[r] = v
	}
	return out, nil
}

// Matrix returns the named columns as a row-major float64 matrix.
func (f *Frame) Matrix(cols []string) ([][]float64, error) {
	if missing := f.Missing(cols...); len(missing) > 0 {
		return nil, fmt.Errorf("columns %v not in dataset", missing)
	}
	out := make([][]float64, len(f.Rows))
	for r := range out {
		out[r] = make([]float64, len(cols))
	}
	for c, col := range cols {
		values, err := f.Floats(col)
		if err != nil {
			return nil, err
		}
		for r, v := range values {
			out[r][c] = v
		}
	}
	return out, nil
}

// Slice returns the rows in [from, to) as a new frame sharing cell storage.
func (f *Frame) Slice(from, to int) *Frame {
	from = max(from, 0)
	to = min(to, len(f.Rows))
	return &Frame{Columns: f.Columns, Rows: f.Rows[from:to], index: f.index}
}

// Select returns the rows at the given indices as a new frame.
func (f *Frame) Select(idx []int) *Frame {
	rows := make([][]string, len(idx))
	for i, r := range idx {
		rows[i] = f.Rows[r]
	}
	return &Frame{Columns: f.Columns, Rows: rows, index: f.index}
}

// Without returns all column names except the excluded ones, in frame order.
func (f *Frame) Without(exclude ...string) []string {
	out := make([]string, 0, len(f.Columns))
	for _, c := range f.Columns {
		if !slices.Contains(exclude, c) {
			out = append(out, c)
		}
	}
	return out
}
