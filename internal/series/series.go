// Package series provides Arrow-backed typed columns with null support.
package series

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/exp/constraints"
)

// Column is the type-erased view of a Series.
type Column interface {
	Name() string
	Len() int
	DataType() arrow.DataType
	IsNull(index int) bool
	NullN() int
	String() string
	Array() arrow.Array
	Release()
	// GetAsString returns the canonical text form of the value, "" for nulls.
	GetAsString(index int) string
	// Float64At returns the value as float64; ok is false for nulls and non-numeric text.
	Float64At(index int) (float64, bool)
}

// Series represents a typed data column with Apache Arrow backend
type Series[T any] struct {
	name  string
	array arrow.Array
}

// New creates a new Series from a slice of values. It panics on unsupported
// element types; readers that handle untrusted input use NewSafe.
func New[T any](name string, values []T, mem memory.Allocator) *Series[T] {
	s, err := NewNullable(name, values, nil, mem)
	if err != nil {
		panic(err.Error())
	}
	return s
}

// NewSafe is New returning an error instead of panicking.
func NewSafe[T any](name string, values []T, mem memory.Allocator) (*Series[T], error) {
	return NewNullable(name, values, nil, mem)
}

// NewNullable creates a Series where valid[i] == false marks a null. A nil
// valid slice means every value is present.
func NewNullable[T any](name string, values []T, valid []bool, mem memory.Allocator) (*Series[T], error) {
	if valid != nil && len(valid) != len(values) {
		return nil, fmt.Errorf("validity length %d does not match %d values", len(valid), len(values))
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	var arr arrow.Array
	switch v := any(values).(type) {
	case []string:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(v, valid)
		arr = b.NewArray()
	case []int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.AppendValues(v, valid)
		arr = b.NewArray()
	case []float64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(v, valid)
		arr = b.NewArray()
	case []bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(v, valid)
		arr = b.NewArray()
	default:
		return nil, fmt.Errorf("unsupported type: %T", values)
	}

	return &Series[T]{name: name, array: arr}, nil
}

// FromArray wraps an existing Arrow array. The array is retained.
func FromArray(name string, arr arrow.Array) (Column, error) {
	switch arr.(type) {
	case *array.String:
		arr.Retain()
		return &Series[string]{name: name, array: arr}, nil
	case *array.Int64:
		arr.Retain()
		return &Series[int64]{name: name, array: arr}, nil
	case *array.Float64:
		arr.Retain()
		return &Series[float64]{name: name, array: arr}, nil
	case *array.Boolean:
		arr.Retain()
		return &Series[bool]{name: name, array: arr}, nil
	default:
		return nil, fmt.Errorf("unsupported array type: %s", arr.DataType())
	}
}

// Name returns the column name
func (s *Series[T]) Name() string {
	return s.name
}

// Len returns the length of the series
func (s *Series[T]) Len() int {
	return s.array.Len()
}

// NullN returns the number of null values.
func (s *Series[T]) NullN() int {
	return s.array.NullN()
}

// Values returns the data as a Go slice. Nulls read as the zero value.
func (s *Series[T]) Values() []T {
	result := make([]T, s.array.Len())
	for i := range result {
		result[i] = s.Value(i)
	}
	return result
}

// Value returns the value at the given index
func (s *Series[T]) Value(index int) T {
	var result T
	if index < 0 || index >= s.array.Len() || s.array.IsNull(index) {
		return result
	}

	switch arr := s.array.(type) {
	case *array.String:
		if v, ok := any(&result).(*string); ok {
			*v = arr.Value(index)
		}
	case *array.Int64:
		if v, ok := any(&result).(*int64); ok {
			*v = arr.Value(index)
		}
	case *array.Float64:
		if v, ok := any(&result).(*float64); ok {
			*v = arr.Value(index)
		}
	case *array.Boolean:
		if v, ok := any(&result).(*bool); ok {
			*v = arr.Value(index)
		}
	}

	return result
}

// DataType returns the Arrow data type
func (s *Series[T]) DataType() arrow.DataType {
	return s.array.DataType()
}

// IsNull checks if the value at index is null
func (s *Series[T]) IsNull(index int) bool {
	return s.array.IsNull(index)
}

// GetAsString implements Column.
func (s *Series[T]) GetAsString(index int) string {
	if index < 0 || index >= s.array.Len() || s.array.IsNull(index) {
		return ""
	}
	switch arr := s.array.(type) {
	case *array.String:
		return arr.Value(index)
	case *array.Int64:
		return strconv.FormatInt(arr.Value(index), 10)
	case *array.Float64:
		return strconv.FormatFloat(arr.Value(index), 'g', -1, 64)
	case *array.Boolean:
		return strconv.FormatBool(arr.Value(index))
	}
	return ""
}

// Float64At implements Column.
func (s *Series[T]) Float64At(index int) (float64, bool) {
	if index < 0 || index >= s.array.Len() || s.array.IsNull(index) {
		return 0, false
	}
	switch arr := s.array.(type) {
	case *array.Float64:
		return arr.Value(index), true
	case *array.Int64:
		return float64(arr.Value(index)), true
	case *array.Boolean:
		if arr.Value(index) {
			return 1, true
		}
		return 0, true
	case *array.String:
		v, err := strconv.ParseFloat(arr.Value(index), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// String returns a string representation of the series
func (s *Series[T]) String() string {
	return fmt.Sprintf("Series[%s]: %s (len=%d, nulls=%d)",
		reflect.TypeOf(new(T)).Elem().Name(),
		s.name,
		s.Len(),
		s.NullN())
}

// Array returns the underlying Arrow array (retains a reference)
func (s *Series[T]) Array() arrow.Array {
	if s.array != nil {
		s.array.Retain()
		return s.array
	}
	return nil
}

// Release releases the underlying Arrow memory
func (s *Series[T]) Release() {
	if s.array != nil {
		s.array.Release()
	}
}

// Take gathers the rows at indices into a new column of the same type,
// preserving nulls.
func Take(col Column, indices []int, mem memory.Allocator) (Column, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	arr := col.Array()
	defer arr.Release()

	n := arr.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("index %d out of bounds [0, %d)", idx, n)
		}
	}

	valid := make([]bool, len(indices))
	for i, idx := range indices {
		valid[i] = !arr.IsNull(idx)
	}

	switch typed := arr.(type) {
	case *array.String:
		return NewNullable(col.Name(), gather(indices, typed.Value), valid, mem)
	case *array.Int64:
		return NewNullable(col.Name(), gather(indices, typed.Value), valid, mem)
	case *array.Float64:
		return NewNullable(col.Name(), gather(indices, typed.Value), valid, mem)
	case *array.Boolean:
		return NewNullable(col.Name(), gather(indices, typed.Value), valid, mem)
	default:
		return nil, fmt.Errorf("unsupported array type: %s", arr.DataType())
	}
}

func gather[T any](indices []int, at func(int) T) []T {
	out := make([]T, len(indices))
	for i, idx := range indices {
		out[i] = at(idx)
	}
	return out
}

// ToFloat64 widens a numeric slice to float64.
func ToFloat64[T constraints.Integer | constraints.Float](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// Float64Values reads a column as float64. valid[i] is false where the value
// is null or cannot be read as a number.
func Float64Values(col Column) ([]float64, []bool) {
	values := make([]float64, col.Len())
	valid := make([]bool, col.Len())
	for i := range values {
		values[i], valid[i] = col.Float64At(i)
	}
	return values, valid
}
