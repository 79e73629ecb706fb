// Package errs defines the error taxonomy shared by the docqa services.
//
// Every error that leaves a service operation is either a storage level error
// (wrapped with fmt.Errorf) or an *Error carrying a Kind. Validation and
// NotFound errors are always raised before any side effect happens.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to react to it, such as the
// CLI exit code or an MCP tool result.
type Kind int

const (
	KindUnknown Kind = iota
	Validation
	NotFound
	Processing
	Consistency
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Processing:
		return "processing"
	case Consistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Sentinel errors. They are wrapped in an *Error and remain reachable through
// errors.Is.
var (
	ErrEmptyQuestion    = errors.New("question cannot be empty")
	ErrEmptyKeyword     = errors.New("search keyword cannot be empty")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrEmptyFile        = errors.New("empty file")
	ErrTooLarge         = errors.New("file too large")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidName      = errors.New("invalid document name")
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf returns a Validation error wrapping sentinel with extra detail.
func Validationf(op string, sentinel error, format string, args ...any) error {
	return &Error{Kind: Validation, Op: op, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsValidation(err error) bool { return KindOf(err) == Validation }

func IsNotFound(err error) bool { return KindOf(err) == NotFound }

func IsProcessing(err error) bool { return KindOf(err) == Processing }
