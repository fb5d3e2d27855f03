package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when buffer extents disagree with declared
// row or channel counts.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError provides detailed information about a shape mismatch.
type ShapeError struct {
	Op   string // Operation that detected the mismatch
	What string // Which extent disagreed (e.g. "input rows")
	Got  int
	Want int
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: got %d, want %d", e.Op, e.What, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// CheckExtent returns a *ShapeError when got != want.
func CheckExtent(op, what string, got, want int) error {
	if got != want {
		return &ShapeError{Op: op, What: what, Got: got, Want: want}
	}
	return nil
}
