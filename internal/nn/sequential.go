package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Backward walks the
// modules in reverse order.
//
// Example:
//
//	model := nn.NewSequential[float32](
//	    nn.NewSubmanifoldConvolution[float32](2, 1, 8, tensor.Shape{3, 3}, false),
//	    nn.NewConvolution[float32](2, 8, 16, tensor.Shape{2, 2}, tensor.Shape{2, 2}, true),
//	)
//
//	y, err := model.Forward(x)
//	dx, err := model.Backward(dy)
type Sequential[T tensor.Float] struct {
	modules []Module[T]
}

// NewSequential creates a new Sequential container.
func NewSequential[T tensor.Float](modules ...Module[T]) *Sequential[T] {
	return &Sequential[T]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[T]) Forward(x *SparseTensor[T]) (*SparseTensor[T], error) {
	out := x
	for i, module := range s.modules {
		var err error
		out, err = module.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
	}
	return out, nil
}

// Backward propagates dOutput through all modules in reverse order.
func (s *Sequential[T]) Backward(dOutput *tensor.Matrix[T]) (*tensor.Matrix[T], error) {
	grad := dOutput
	for i := len(s.modules) - 1; i >= 0; i-- {
		var err error
		grad, err = s.modules[i].Backward(grad)
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
	}
	return grad, nil
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential[T]) Parameters() []*Parameter[T] {
	var params []*Parameter[T]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// InputSpatialSize maps out back through every module.
func (s *Sequential[T]) InputSpatialSize(out tensor.Shape) tensor.Shape {
	for i := len(s.modules) - 1; i >= 0; i-- {
		out = s.modules[i].InputSpatialSize(out)
	}
	return out
}

// Add appends a module to the sequence.
func (s *Sequential[T]) Add(module Module[T]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[T]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[T]) Module(index int) Module[T] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// String lists the modules, one per line.
func (s *Sequential[T]) String() string {
	var b strings.Builder
	b.WriteString("Sequential(\n")
	for i, module := range s.modules {
		fmt.Fprintf(&b, "  (%d): %v\n", i, module)
	}
	b.WriteString(")")
	return b.String()
}
