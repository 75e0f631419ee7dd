package dag

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks input that is not a well-formed graph document.
	ErrParse = errors.New("parse error")
	// ErrStructural marks a decoded graph that violates a graph invariant.
	ErrStructural = errors.New("structural error")
)

// ParseError reports a graph document that could not be decoded.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse graph: %s: %v", e.Msg, e.Err)
	}
	return "parse graph: " + e.Msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// StructuralError reports a graph invariant violation. Element is the offending node or edge id.
type StructuralError struct {
	Element string
	Msg     string
}

func (e *StructuralError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("invalid graph: %s: %s", e.Element, e.Msg)
	}
	return "invalid graph: " + e.Msg
}

func (e *StructuralError) Unwrap() error { return ErrStructural }
