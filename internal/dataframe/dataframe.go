// Package dataframe provides the in-memory track table: an ordered set of
// equally long Arrow-backed columns.
package dataframe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/trackpop/internal/series"
)

// nullMarker stands in for a null cell in row keys. Non-null cells start
// with their decimal length, so no cell encodes to it.
const nullMarker = "-;"

// DataFrame represents a table of data with typed columns
type DataFrame struct {
	columns map[string]ISeries
	order   []string // Maintains column order
}

// New creates a new DataFrame from a slice of ISeries
func New(series ...ISeries) *DataFrame {
	columns := make(map[string]ISeries)
	order := make([]string, 0, len(series))

	for _, s := range series {
		name := s.Name()
		if _, dup := columns[name]; !dup {
			order = append(order, name)
		}
		columns[name] = s
	}

	return &DataFrame{
		columns: columns,
		order:   order,
	}
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	if len(df.order) == 0 {
		return []string{}
	}
	return append([]string(nil), df.order...)
}

// Len returns the number of rows (assumes all columns have same length)
func (df *DataFrame) Len() int {
	if len(df.order) == 0 {
		return 0
	}
	return df.columns[df.order[0]].Len()
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.order)
}

// Column returns the series for the given column name
func (df *DataFrame) Column(name string) (ISeries, bool) {
	series, exists := df.columns[name]
	return series, exists
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// Select returns a new DataFrame with only the specified columns, in the
// order given. Unknown names are skipped.
func (df *DataFrame) Select(names ...string) *DataFrame {
	newColumns := make(map[string]ISeries)
	newOrder := make([]string, 0, len(names))

	for _, name := range names {
		if series, exists := df.columns[name]; exists {
			if _, dup := newColumns[name]; dup {
				continue
			}
			newColumns[name] = series
			newOrder = append(newOrder, name)
		}
	}

	return &DataFrame{
		columns: newColumns,
		order:   newOrder,
	}
}

// Drop returns a new DataFrame without the specified columns
func (df *DataFrame) Drop(names ...string) *DataFrame {
	dropSet := make(map[string]bool)
	for _, name := range names {
		dropSet[name] = true
	}

	newColumns := make(map[string]ISeries)
	newOrder := make([]string, 0, len(df.order))

	for _, name := range df.order {
		if !dropSet[name] {
			newColumns[name] = df.columns[name]
			newOrder = append(newOrder, name)
		}
	}

	return &DataFrame{
		columns: newColumns,
		order:   newOrder,
	}
}

// Take returns a new DataFrame holding the rows at indices, in that order.
// Every column is copied into independent memory.
func (df *DataFrame) Take(indices []int) (*DataFrame, error) {
	mem := memory.NewGoAllocator()
	taken := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		col, err := series.Take(df.columns[name], indices, mem)
		if err != nil {
			for _, t := range taken {
				t.Release()
			}
			return nil, fmt.Errorf("taking rows from column %s: %w", name, err)
		}
		taken = append(taken, col)
	}
	return New(taken...), nil
}

// Slice creates a new DataFrame containing rows from start (inclusive) to end (exclusive)
func (df *DataFrame) Slice(start, end int) (*DataFrame, error) {
	length := df.Len()
	if start < 0 || start > end || end > length {
		return nil, fmt.Errorf("slice [%d, %d) out of bounds for %d rows", start, end, length)
	}
	indices := make([]int, end-start)
	for i := range indices {
		indices[i] = start + i
	}
	return df.Take(indices)
}

// RowHasNull reports whether row has a null in any of the named columns.
// Columns missing from the table are ignored.
func (df *DataFrame) RowHasNull(row int, columns []string) bool {
	for _, name := range columns {
		if col, ok := df.columns[name]; ok && col.IsNull(row) {
			return true
		}
	}
	return false
}

// RowKey returns a string that is equal for two rows exactly when every
// column holds the same value (nulls compare equal to each other). Each cell
// is written as <len>:<text>, so cell contents cannot run together.
func (df *DataFrame) RowKey(row int) string {
	var sb strings.Builder
	for _, name := range df.order {
		col := df.columns[name]
		if col.IsNull(row) {
			sb.WriteString(nullMarker)
			continue
		}
		v := col.GetAsString(row)
		sb.WriteString(strconv.Itoa(len(v)))
		sb.WriteByte(':')
		sb.WriteString(v)
	}
	return sb.String()
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	if len(df.columns) == 0 {
		return "DataFrame[empty]"
	}

	parts := []string{fmt.Sprintf("DataFrame[%dx%d]", df.Len(), df.Width())}

	for _, name := range df.order {
		series := df.columns[name]
		parts = append(parts, fmt.Sprintf("  %s: %s", name, series.DataType().String()))
	}

	return strings.Join(parts, "\n")
}

// Release releases every column's memory.
func (df *DataFrame) Release() {
	for _, name := range df.order {
		df.columns[name].Release()
	}
}
