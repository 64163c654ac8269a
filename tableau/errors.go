package tableau

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every error describing an unusable tableau.
var ErrMalformed = errors.New("malformed tableau")

// FormatError locates a problem in a tableau file. Line and Column are
// 1-based; Column is 0 when the problem concerns the whole line.
type FormatError struct {
	Line   int
	Column int
	Msg    string
}

func (e *FormatError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *FormatError) Unwrap() error {
	return ErrMalformed
}

func formatErrorf(line, column int, format string, args ...any) error {
	return &FormatError{Line: line, Column: column, Msg: fmt.Sprintf(format, args...)}
}
