// Package validation provides reusable input validators for the pipeline:
// column presence, numeric null-free columns, length consistency and
// documented value ranges for prediction requests.
package validation

import (
	"fmt"
	"math"

	"github.com/paveg/trackpop/internal/errors"
	"github.com/paveg/trackpop/internal/series"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider interface for types that provide column information
type ColumnProvider interface {
	HasColumn(name string) bool
	Columns() []string
	Len() int
	Width() int
}

// ColumnLookup is a ColumnProvider that also returns the column itself.
type ColumnLookup interface {
	ColumnProvider
	Column(name string) (series.Column, bool)
}

// ColumnValidator validates column existence
type ColumnValidator struct {
	df      ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column operations
func NewColumnValidator(df ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{
		df:      df,
		columns: columns,
		op:      op,
	}
}

// Validate checks if all columns exist in the table
func (v *ColumnValidator) Validate() error {
	for _, column := range v.columns {
		if !v.df.HasColumn(column) {
			return errors.NewSchemaError(v.op, column)
		}
	}
	return nil
}

// NumericColumnValidator checks that a column is present, numeric and has
// no nulls.
type NumericColumnValidator struct {
	df     ColumnLookup
	column string
	op     string
}

// NewNumericColumnValidator creates a validator for a numeric column
func NewNumericColumnValidator(df ColumnLookup, op, column string) *NumericColumnValidator {
	return &NumericColumnValidator{df: df, column: column, op: op}
}

// Validate checks the column type and null count
func (v *NumericColumnValidator) Validate() error {
	col, ok := v.df.Column(v.column)
	if !ok {
		return errors.NewSchemaError(v.op, v.column)
	}
	if col.NullN() > 0 {
		return errors.NewSchemaErrorf(v.op, v.column, "column has %d null values", col.NullN())
	}
	for i := 0; i < col.Len(); i++ {
		if _, ok := col.Float64At(i); !ok {
			return errors.NewSchemaErrorf(v.op, v.column, "value %q at row %d is not numeric", col.GetAsString(i), i)
		}
	}
	return nil
}

// LengthValidator validates array length consistency
type LengthValidator struct {
	expected int
	actual   int
	op       string
	context  string
}

// NewLengthValidator creates a validator for length consistency
func NewLengthValidator(expected, actual int, op, context string) *LengthValidator {
	return &LengthValidator{
		expected: expected,
		actual:   actual,
		op:       op,
		context:  context,
	}
}

// Validate checks if lengths match
func (v *LengthValidator) Validate() error {
	if v.expected != v.actual {
		message := fmt.Sprintf("%s: expected length %d, got %d", v.context, v.expected, v.actual)
		return errors.NewValidationError(v.op, "", message)
	}
	return nil
}

// RangeValidator checks that a named value lies in [Min, Max].
type RangeValidator struct {
	field string
	value float64
	min   float64
	max   float64
	op    string
}

// NewRangeValidator creates a validator for a closed value range
func NewRangeValidator(op, field string, value, minValue, maxValue float64) *RangeValidator {
	return &RangeValidator{field: field, value: value, min: minValue, max: maxValue, op: op}
}

// Validate checks the value is finite and within range
func (v *RangeValidator) Validate() error {
	if math.IsNaN(v.value) || math.IsInf(v.value, 0) || v.value < v.min || v.value > v.max {
		message := fmt.Sprintf("value %g outside [%g, %g]", v.value, v.min, v.max)
		return errors.NewValidationError(v.op, v.field, message)
	}
	return nil
}

// EmptyDataFrameValidator validates operations on empty tables
type EmptyDataFrameValidator struct {
	df ColumnProvider
	op string
}

// NewEmptyDataFrameValidator creates a validator for empty table checks
func NewEmptyDataFrameValidator(df ColumnProvider, op string) *EmptyDataFrameValidator {
	return &EmptyDataFrameValidator{
		df: df,
		op: op,
	}
}

// Validate checks if the table is empty when operation requires data
func (v *EmptyDataFrameValidator) Validate() error {
	if v.df.Len() == 0 {
		return errors.NewInvalidInputError(v.op, "operation not supported on empty table")
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidateColumns is a convenience function for column validation
func ValidateColumns(df ColumnProvider, op string, columns ...string) error {
	return NewColumnValidator(df, op, columns...).Validate()
}

// ValidateNumericColumn is a convenience function for numeric column validation
func ValidateNumericColumn(df ColumnLookup, op, column string) error {
	return NewNumericColumnValidator(df, op, column).Validate()
}

// ValidateLength is a convenience function for length validation
func ValidateLength(expected, actual int, op, context string) error {
	return NewLengthValidator(expected, actual, op, context).Validate()
}

// ValidateRange is a convenience function for range validation
func ValidateRange(op, field string, value, minValue, maxValue float64) error {
	return NewRangeValidator(op, field, value, minValue, maxValue).Validate()
}

// ValidateNotEmpty is a convenience function for empty table validation
func ValidateNotEmpty(df ColumnProvider, op string) error {
	return NewEmptyDataFrameValidator(df, op).Validate()
}
