// Package dataset provides the in-memory table type produced by the CSV
// loader and consumed by the preprocessing layer.
//
// A Table holds heterogeneous columns as raw strings; numeric interpretation
// happens lazily through FloatColumn so that categorical and free-text
// columns pass through untouched. Tables are immutable after construction.
package dataset

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/go-tabkit/tabkit/pkg/errors"
)

// Table is an immutable rows × named-columns view of a delimited file.
type Table struct {
	names []string
	index map[string]int
	cols  [][]string
	nRows int
}

// NewTable builds a Table from a header and row-major records. Every record
// must have exactly len(names) fields.
func NewTable(names []string, records [][]string) (*Table, error) {
	if len(names) == 0 {
		return nil, errors.NewValueError("NewTable", "header must contain at least one column")
	}

	index := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := index[name]; dup {
			return nil, errors.NewValidationError("header", "duplicate column name", name)
		}
		index[name] = i
	}

	cols := make([][]string, len(names))
	for i := range cols {
		cols[i] = make([]string, len(records))
	}
	for r, record := range records {
		if len(record) != len(names) {
			return nil, errors.NewDimensionError("NewTable", len(names), len(record), 1)
		}
		for c, cell := range record {
			cols[c][r] = cell
		}
	}

	return &Table{
		names: names,
		index: index,
		cols:  cols,
		nRows: len(records),
	}, nil
}

// NumRows returns the number of data rows (excluding the header).
func (t *Table) NumRows() int {
	return t.nRows
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	return len(t.names)
}

// Names returns the column names in file order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the raw string cells of the named column.
// A missing name yields a MissingColumnError.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, errors.NewMissingColumnError("Table.Column", name)
	}
	out := make([]string, t.nRows)
	copy(out, t.cols[i])
	return out, nil
}

// FloatColumn parses the named column as float64 values. Empty cells and
// cells that fail to parse become NaN; the first such cell raises a single
// DataConversionWarning for the column. The imputation stage treats NaN as
// the missing-value marker.
func (t *Table) FloatColumn(name string) ([]float64, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, errors.NewMissingColumnError("Table.FloatColumn", name)
	}

	out := make([]float64, t.nRows)
	converted := false
	for r, cell := range t.cols[i] {
		if cell == "" {
			out[r] = math.NaN()
			converted = true
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			out[r] = math.NaN()
			converted = true
			continue
		}
		out[r] = v
	}

	if converted {
		errors.Warn(errors.NewDataConversionWarning(
			"string", "float64",
			"column '"+name+"' contains empty or non-numeric cells, replaced with NaN"))
	}
	return out, nil
}

// Select returns a new Table restricted to the named columns, preserving row
// order. Unknown names yield a MissingColumnError.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([][]string, len(names))
	outNames := make([]string, len(names))
	for j, name := range names {
		i, ok := t.index[name]
		if !ok {
			return nil, errors.NewMissingColumnError("Table.Select", name)
		}
		outNames[j] = name
		cols[j] = t.cols[i]
	}

	index := make(map[string]int, len(outNames))
	for j, name := range outNames {
		index[name] = j
	}
	return &Table{names: outNames, index: index, cols: cols, nRows: t.nRows}, nil
}

// subset returns a new Table containing the given row indices in order.
func (t *Table) subset(rows []int) *Table {
	cols := make([][]string, len(t.cols))
	for c := range t.cols {
		cols[c] = make([]string, len(rows))
		for j, r := range rows {
			cols[c][j] = t.cols[c][r]
		}
	}
	index := make(map[string]int, len(t.names))
	for i, name := range t.names {
		index[name] = i
	}
	return &Table{names: t.names, index: index, cols: cols, nRows: len(rows)}
}

// TrainTestSplit shuffles the table rows with the given seed and splits them
// into a training and a held-out part. testSize is the held-out fraction in
// (0, 1); the test part receives ceil(nRows * testSize) rows.
func TrainTestSplit(t *Table, testSize float64, seed int64) (train, test *Table, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("testSize", "must be in (0, 1)", testSize)
	}
	if t.nRows < 2 {
		return nil, nil, errors.NewValueError("TrainTestSplit", "need at least two rows to split")
	}

	perm := rand.New(rand.NewSource(seed)).Perm(t.nRows)
	nTest := int(math.Ceil(float64(t.nRows) * testSize))
	if nTest >= t.nRows {
		nTest = t.nRows - 1
	}

	return t.subset(perm[nTest:]), t.subset(perm[:nTest]), nil
}
