package models

import (
	"fmt"
	"strings"
)

// DataLoadError represents an unreadable source or a source missing required columns
type DataLoadError struct {
	Source  string
	Missing []string
	Err     error
}

// Error implements the error interface
func (e *DataLoadError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("data load error for %s: missing required columns: %s", e.Source, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("data load error for %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error
func (e *DataLoadError) Unwrap() error {
	return e.Err
}

// InsufficientDataError represents too few rows or periods for a computation
type InsufficientDataError struct {
	Operation string
	Need      int
	Have      int
	Reason    string
}

// Error implements the error interface
func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data for %s: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("insufficient data for %s: need at least %d, have %d", e.Operation, e.Need, e.Have)
}

// InvalidParameterError represents a parameter outside its valid domain
type InvalidParameterError struct {
	Parameter string
	Reason    string
	Value     interface{}
}

// Error implements the error interface
func (e *InvalidParameterError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid parameter '%s': %s (value: %v)", e.Parameter, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid parameter '%s': %s", e.Parameter, e.Reason)
}

// NewDataLoadError wraps a read failure for a source
func NewDataLoadError(source string, err error) error {
	return &DataLoadError{Source: source, Err: err}
}

// NewMissingColumnsError reports the required columns absent from a source
func NewMissingColumnsError(source string, missing []string) error {
	return &DataLoadError{Source: source, Missing: missing}
}

// NewInsufficientDataError creates a new InsufficientDataError
func NewInsufficientDataError(operation string, need, have int) error {
	return &InsufficientDataError{Operation: operation, Need: need, Have: have}
}

// NewInsufficientDataErrorWithReason creates an InsufficientDataError with a free-form reason
func NewInsufficientDataErrorWithReason(operation, reason string) error {
	return &InsufficientDataError{Operation: operation, Reason: reason}
}

// NewInvalidParameterError creates a new InvalidParameterError
func NewInvalidParameterError(parameter, reason string, value interface{}) error {
	return &InvalidParameterError{Parameter: parameter, Reason: reason, Value: value}
}
