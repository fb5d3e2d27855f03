// Package nn implements sparse convolution layers on top of the scn entry
// points.
//
// This package provides:
//   - Module interface: Base interface for all sparse layers
//   - Parameter: Trainable buffers with write-accumulate gradients
//   - SparseTensor: Features plus the Metadata and spatial size they live at
//   - Convolution, SubmanifoldConvolution, PermutohedralSubmanifoldConvolution,
//     FullConvolution, RandomizedStrideConvolution
//   - Sequential: Container for stacking layers
//   - Stats: Multiply-add and hidden-state counters
//
// Layers save their input during Forward; the next Backward call uses it.
package nn

import (
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Module is the base interface for all sparse layers.
//
// Every module must implement:
//   - Forward: Compute the output tensor and remember the input
//   - Backward: Accumulate parameter gradients and return the input gradient
//   - Parameters: Return all trainable parameters
//   - InputSpatialSize: Map an output spatial size back to the input size
//
// Modules can be composed:
//
//	model := nn.NewSequential[float32](
//	    nn.NewSubmanifoldConvolution[float32](3, 1, 16, tensor.Shape{3, 3, 3}, false),
//	    nn.NewConvolution[float32](3, 16, 32, tensor.Shape{2, 2, 2}, tensor.Shape{2, 2, 2}, false),
//	)
type Module[T tensor.Float] interface {
	// Forward computes the output of the module for x.
	Forward(x *SparseTensor[T]) (*SparseTensor[T], error)

	// Backward takes the gradient of the last Forward output and returns
	// the gradient of its input. Parameter gradients accumulate.
	Backward(dOutput *tensor.Matrix[T]) (*tensor.Matrix[T], error)

	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter[T]

	// InputSpatialSize returns the input spatial size that produces out.
	InputSpatialSize(out tensor.Shape) tensor.Shape
}
