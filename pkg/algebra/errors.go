package algebra

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConstant is returned when numeric evaluation meets a free variable.
	ErrNotConstant = errors.New("expression is not constant")
	// ErrNoVariable is returned when there is nothing to solve for.
	ErrNoVariable = errors.New("no variables found to solve for")
	// ErrUnsolvable is returned for equations outside the supported forms.
	ErrUnsolvable = errors.New("cannot solve equation")
	// ErrDomain is returned for undefined results such as division by zero.
	ErrDomain = errors.New("math domain error")

	// errTooLarge stops expansions that would blow up; callers keep the
	// expression unexpanded instead.
	errTooLarge = errors.New("expansion too large")
)

// ParseError reports malformed input. Pos is the zero-based byte offset.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos+1, e.Msg)
}

func parseErrorf(pos int, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
