package errors

import "fmt"

// Category represents the type of error.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryResource  Category = "resource"
	CategoryBind      Category = "bind"
	CategoryLifecycle Category = "lifecycle"
	CategoryCLI       Category = "cli"
)

// Error is a structured error with a category, detail, and a fix suggestion.
// Fatal conditions in the serving engine are reported through this type so
// the CLI can render the message, the detail, and the suggestion separately.
type Error struct {
	// Category is the error type (config, resource, bind, ...).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error in the given category.
func New(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

// FromError wraps a standard error, preserving an existing *Error.
func FromError(err error, category Category, message string) *Error {
	if err == nil {
		return nil
	}
	if be, ok := err.(*Error); ok {
		return be
	}
	return New(category, message).Wrap(err)
}
