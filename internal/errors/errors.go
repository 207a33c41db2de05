// Package errors provides the error taxonomy shared by the loader, preprocessor,
// trainer and predictor. Every failure is an *Error carrying its Kind, the
// operation that failed and, when relevant, the column involved.
package errors

import (
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindInvalidInput marks malformed arguments (ratios, fold counts, ranges).
	KindInvalidInput Kind = iota
	// KindSchema marks a declared column missing from the input table.
	KindSchema
	// KindUnknownModelKind marks an unsupported estimator name.
	KindUnknownModelKind
	// KindNotFitted marks predict/evaluate on an estimator that was never fit.
	KindNotFitted
	// KindModelNotTrained marks facade-level predict before any train/load.
	KindModelNotTrained
	// KindArtifactNotFound marks a missing artifact file.
	KindArtifactNotFound
	// KindArtifactCorrupt marks an artifact that cannot be decoded.
	KindArtifactCorrupt
)

var kindNames = map[Kind]string{
	KindInvalidInput:     "invalid input",
	KindSchema:           "schema error",
	KindUnknownModelKind: "unknown model kind",
	KindNotFitted:        "not fitted",
	KindModelNotTrained:  "model not trained",
	KindArtifactNotFound: "artifact not found",
	KindArtifactCorrupt:  "artifact corrupt",
}

// String returns the human-readable kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown_kind(%d)", int(k))
}

// Error is the standard error value returned across the module.
type Error struct {
	Kind    Kind   // Error classification
	Op      string // Operation name (e.g., "SplitFeaturesTarget", "Predict")
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Column != "" {
		return fmt.Sprintf("%s: %s failed on column '%s': %s", e.Kind, e.Op, e.Column, msg)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Kind, e.Op, msg)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind. This lets callers
// match on the sentinels below with errors.Is regardless of Op or Column.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is matching.
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrSchema           = &Error{Kind: KindSchema}
	ErrUnknownModelKind = &Error{Kind: KindUnknownModelKind}
	ErrNotFitted        = &Error{Kind: KindNotFitted}
	ErrModelNotTrained  = &Error{Kind: KindModelNotTrained}
	ErrArtifactNotFound = &Error{Kind: KindArtifactNotFound}
	ErrArtifactCorrupt  = &Error{Kind: KindArtifactCorrupt}
)

// NewSchemaError creates an error for a declared column that the table lacks.
func NewSchemaError(op, column string) *Error {
	return &Error{
		Kind:    KindSchema,
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewSchemaErrorf creates a schema error with a custom message.
func NewSchemaErrorf(op, column, format string, args ...any) *Error {
	return &Error{
		Kind:    KindSchema,
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Op:      op,
		Message: message,
	}
}

// NewValidationError creates an error for a value outside its documented range.
func NewValidationError(op, column, message string) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewUnknownModelKindError creates an error for an unsupported estimator name.
func NewUnknownModelKindError(op, name string, supported []string) *Error {
	return &Error{
		Kind:    KindUnknownModelKind,
		Op:      op,
		Message: fmt.Sprintf("unsupported model %q, choose from %v", name, supported),
	}
}

// NewNotFittedError creates an error for an estimator used before Fit.
func NewNotFittedError(op, model string) *Error {
	return &Error{
		Kind:    KindNotFitted,
		Op:      op,
		Message: fmt.Sprintf("%s is not fitted, call Fit first", model),
	}
}

// NewModelNotTrainedError creates an error for a facade lookup with no pipeline.
func NewModelNotTrainedError(op, model string) *Error {
	return &Error{
		Kind:    KindModelNotTrained,
		Op:      op,
		Message: fmt.Sprintf("no trained pipeline for %q, train or load it first", model),
	}
}

// NewArtifactNotFoundError creates an error for a missing artifact path.
func NewArtifactNotFoundError(op, path string, cause error) *Error {
	return &Error{
		Kind:    KindArtifactNotFound,
		Op:      op,
		Message: fmt.Sprintf("artifact %s not found", path),
		Cause:   cause,
	}
}

// NewArtifactCorruptError creates an error for an artifact that failed to decode.
func NewArtifactCorruptError(op, path string, cause error) *Error {
	return &Error{
		Kind:    KindArtifactCorrupt,
		Op:      op,
		Message: fmt.Sprintf("artifact %s is malformed", path),
		Cause:   cause,
	}
}
