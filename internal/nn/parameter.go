package nn

import (
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Parameter represents a trainable buffer of a layer.
//
// The gradient buffer has the same length as the value and is
// write-accumulate: Backward adds into it and ZeroGrad clears it.
//
// Example:
//
//	w := layer.Parameters()[0]
//	for i, g := range w.Grad() {
//	    w.Value()[i] -= lr * g
//	}
//	w.ZeroGrad()
type Parameter[T tensor.Float] struct {
	name  string // Parameter name (e.g., "weight", "bias")
	value []T
	grad  []T
}

// NewParameter creates a parameter wrapping value with a zero gradient.
func NewParameter[T tensor.Float](name string, value []T) *Parameter[T] {
	return &Parameter[T]{
		name:  name,
		value: value,
		grad:  make([]T, len(value)),
	}
}

// Name returns the parameter name.
func (p *Parameter[T]) Name() string {
	return p.name
}

// Value returns the parameter buffer.
func (p *Parameter[T]) Value() []T {
	return p.value
}

// Grad returns the gradient buffer.
func (p *Parameter[T]) Grad() []T {
	return p.grad
}

// ZeroGrad clears the gradient buffer.
//
// This should be called before each training iteration to avoid
// accumulating gradients from previous iterations.
func (p *Parameter[T]) ZeroGrad() {
	clear(p.grad)
}
