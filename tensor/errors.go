package tensor

import (
	"errors"
	"fmt"
)

var (
	ErrParse     = errors.New("contraction parse error")
	ErrShape     = errors.New("shape mismatch")
	ErrAliased   = errors.New("output aliases an input")
	ErrResidency = errors.New("tensor residency mismatch")
	ErrScope     = errors.New("multi-kernel launch scope")
)

// ParseError reports a malformed contraction expression
type ParseError struct {
	Expr string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Expr, e.Msg)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// ShapeError reports operands whose shapes do not fit the expression
type ShapeError struct {
	Expr string
	Msg  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("contraction %q: %s", e.Expr, e.Msg)
}

func (e *ShapeError) Unwrap() error { return ErrShape }
