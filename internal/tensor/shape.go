package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape is a spatial size: one extent per spatial dimension.
// It also describes filter sizes and strides.
type Shape []int

// Volume returns the number of grid cells covered by the shape.
// An empty shape has volume 1.
func (s Shape) Volume() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that the shape has the expected rank and that every
// extent is positive.
func (s Shape) Validate(rank int) error {
	if len(s) != rank {
		return fmt.Errorf("expected %d dimensions, got %d", rank, len(s))
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Key returns a compact string usable as a map key, e.g. "32x32x16".
func (s Shape) Key() string {
	var b strings.Builder
	for i, dim := range s {
		if i > 0 {
			b.WriteByte('x')
		}
		b.WriteString(strconv.Itoa(dim))
	}
	return b.String()
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	return "(" + strings.ReplaceAll(s.Key(), "x", ",") + ")"
}

// Filled returns a shape of the given rank with every extent set to v.
func Filled(rank, v int) Shape {
	s := make(Shape, rank)
	for i := range s {
		s[i] = v
	}
	return s
}

// Point is an integer grid coordinate, one component per spatial dimension.
type Point []int32

// Within reports whether p lies inside [0, size) on every axis.
func (p Point) Within(size Shape) bool {
	if len(p) != len(size) {
		return false
	}
	for i, c := range p {
		if c < 0 || int(c) >= size[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the point.
func (p Point) Clone() Point {
	clone := make(Point, len(p))
	copy(clone, p)
	return clone
}
