// Package table holds the small in-memory tabular data the report pipeline works on:
// CSV rows addressed by column name. Tables are never modified in place; every
// transformation returns a new Table.
package table

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrSchemaMismatch is returned when tables or projections disagree on columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrNotNumeric is returned when a cell expected to hold a number does not.
	ErrNotNumeric = errors.New("not numeric")
)

// Table is an immutable set of string rows under a named header.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New builds a table from a header and rows. Every row must have one cell per column.
func New(columns []string, rows [][]string) (*Table, error) {
	t := &Table{
		columns: slices.Clone(columns),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, c)
		}
		t.index[c] = i
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrSchemaMismatch, i, len(r), len(columns))
		}
	}
	t.rows = rows
	return t, nil
}

// Columns returns a copy of the header.
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the table has column col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Value returns the cell at row i and column col, or "" when the column is absent.
func (t *Table) Value(i int, col string) string {
	j, ok := t.index[col]
	if !ok {
		return ""
	}
	return t.rows[i][j]
}

// Float parses the cell at row i and column col. Blank cells yield NaN.
func (t *Table) Float(i int, col string) (float64, error) {
	j, ok := t.index[col]
	if !ok {
		return 0, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, col)
	}
	s := strings.TrimSpace(t.rows[i][j])
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: column %q row %d: %q", ErrNotNumeric, col, i, s)
	}
	return v, nil
}

// Floats parses a whole column.
func (t *Table) Floats(col string) ([]float64, error) {
	out := make([]float64, t.Len())
	for i := range out {
		v, err := t.Float(i, col)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Row is a read-only view of one table row.
type Row struct {
	t *Table
	i int
}

// Get returns the cell in the named column, or "" when the column is absent.
func (r Row) Get(col string) string {
	return r.t.Value(r.i, col)
}

// Index returns the row position within its table.
func (r Row) Index() int {
	return r.i
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	var rows [][]string
	for i, r := range t.rows {
		if keep(Row{t: t, i: i}) {
			rows = append(rows, r)
		}
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// Take returns the rows at the given positions, in that order.
func (t *Table) Take(idx []int) *Table {
	rows := make([][]string, 0, len(idx))
	for _, i := range idx {
		rows = append(rows, t.rows[i])
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// With sets column col to value on every row, adding the column if needed.
func (t *Table) With(col, value string) *Table {
	values := make([]string, t.Len())
	for i := range values {
		values[i] = value
	}
	out, _ := t.WithValues(col, values)
	return out
}

// WithValues sets column col from values, adding the column if needed.
func (t *Table) WithValues(col string, values []string) (*Table, error) {
	if len(values) != t.Len() {
		return nil, fmt.Errorf("%w: column %q has %d values for %d rows", ErrSchemaMismatch, col, len(values), t.Len())
	}
	j, exists := t.index[col]
	columns := t.columns
	if !exists {
		columns = append(slices.Clone(t.columns), col)
		j = len(columns) - 1
	}
	rows := make([][]string, t.Len())
	for i, r := range t.rows {
		nr := make([]string, len(columns))
		copy(nr, r)
		nr[j] = values[i]
		rows[i] = nr
	}
	return New(columns, rows)
}

// Select projects the table onto cols, in that order. Every column must exist.
func (t *Table) Select(cols ...string) (*Table, error) {
	var missing []string
	pos := make([]int, len(cols))
	for k, c := range cols {
		j, ok := t.index[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		pos[k] = j
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", ErrSchemaMismatch, missing)
	}
	rows := make([][]string, t.Len())
	for i, r := range t.rows {
		nr := make([]string, len(cols))
		for k, j := range pos {
			nr[k] = r[j]
		}
		rows[i] = nr
	}
	return New(cols, rows)
}

// Concat stacks tables that share exactly the same set of columns. The result uses the
// column order of the first table.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return New(nil, nil)
	}
	first := tables[0]
	var rows [][]string
	for n, t := range tables {
		if err := sameColumns(first, t); err != nil {
			return nil, fmt.Errorf("table %d: %w", n, err)
		}
		aligned, err := t.Select(first.columns...)
		if err != nil {
			return nil, err
		}
		rows = append(rows, aligned.rows...)
	}
	return New(first.columns, rows)
}

// Append returns base followed by the rows of extra projected onto base's columns.
// Columns of extra that base does not have are dropped; a base column missing from
// extra is an error.
func Append(base, extra *Table) (*Table, error) {
	projected, err := extra.Select(base.columns...)
	if err != nil {
		return nil, err
	}
	return Concat(base, projected)
}

// Intersect returns the columns present in every table, in the order of the first.
func Intersect(tables ...*Table) []string {
	if len(tables) == 0 {
		return nil
	}
	var shared []string
	for _, c := range tables[0].columns {
		inAll := true
		for _, t := range tables[1:] {
			if !t.Has(c) {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, c)
		}
	}
	return shared
}

func sameColumns(a, b *Table) error {
	var missing, extra []string
	for _, c := range a.columns {
		if !b.Has(c) {
			missing = append(missing, c)
		}
	}
	for _, c := range b.columns {
		if !a.Has(c) {
			extra = append(extra, c)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("%w: missing %v, unexpected %v", ErrSchemaMismatch, missing, extra)
	}
	return nil
}

// FormatFloat renders a number the way the tables store it.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
