package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFatal aborts the whole run (source cannot be acquired, login timed out)
	ErrorTypeFatal ErrorType = "fatal"
	// ErrorTypeTab represents a tab that failed to activate or load its first page
	ErrorTypeTab ErrorType = "tab"
	// ErrorTypePage represents a pagination failure inside one tab
	ErrorTypePage ErrorType = "page"
	// ErrorTypeRecord represents a row that could not be normalized
	ErrorTypeRecord ErrorType = "record"
	// ErrorTypePersistence represents a single record that could not be stored
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError represents an error raised by one component of the pipeline
type PipelineError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error must abort the run.
// Every other type is recoverable and stays inside its component.
func (e *PipelineError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeFatal, ErrorTypeConfiguration:
		return true
	default:
		return false
	}
}

// New creates a new PipelineError
func New(errType ErrorType, component, message string, err error) *PipelineError {
	return &PipelineError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewFatal creates a new run-aborting error
func NewFatal(component, message string, err error) *PipelineError {
	return New(ErrorTypeFatal, component, message, err)
}

// NewTab creates a new tab-level error
func NewTab(label, message string, err error) *PipelineError {
	return New(ErrorTypeTab, label, message, err)
}

// NewPage creates a new page-level error
func NewPage(label, message string, err error) *PipelineError {
	return New(ErrorTypePage, label, message, err)
}

// NewRecord creates a new record-level rejection
func NewRecord(symbol, message string, err error) *PipelineError {
	return New(ErrorTypeRecord, symbol, message, err)
}

// NewPersistence creates a new persistence error
func NewPersistence(symbol, message string, err error) *PipelineError {
	return New(ErrorTypePersistence, symbol, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the ErrorType carried by err, or "" when err is not a PipelineError.
func TypeOf(err error) ErrorType {
	for err != nil {
		if pe, ok := err.(*PipelineError); ok {
			return pe.Type
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsFatal reports whether err carries a PipelineError that must abort the run
func IsFatal(err error) bool {
	for err != nil {
		if pe, ok := err.(*PipelineError); ok {
			return pe.IsFatal()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
