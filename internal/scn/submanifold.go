package scn

import (
	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// SubmanifoldConvolutionUpdateOutput runs a submanifold convolution over
// the sites active at size. Output rows are the input rows.
func SubmanifoldConvolutionUpdateOutput[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, size, filterSize tensor.Shape, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	rb, err := m.SubmanifoldRuleBook(size, filterSize)
	if err != nil {
		return nil, 0, err
	}
	n := m.ActiveCount(size)
	return updateOutput(e, "submanifold convolution", rb, n, n, input, weight, bias)
}

// SubmanifoldConvolutionBackward is the backward pass of
// SubmanifoldConvolutionUpdateOutput.
func SubmanifoldConvolutionBackward[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, size, filterSize tensor.Shape, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	rb, err := m.SubmanifoldRuleBook(size, filterSize)
	if err != nil {
		return nil, err
	}
	n := m.ActiveCount(size)
	return backward(e, "submanifold convolution backward", rb, n, n, input, dOutput, weight, grads)
}

// PermutohedralSubmanifoldConvolutionUpdateOutput runs a submanifold
// convolution over the permutohedral lattice neighbourhood. The weight
// volume is metadata.PermutohedralVolume(dimension).
func PermutohedralSubmanifoldConvolutionUpdateOutput[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, size tensor.Shape, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	rb, err := m.PermutohedralSubmanifoldRuleBook(size)
	if err != nil {
		return nil, 0, err
	}
	n := m.ActiveCount(size)
	return updateOutput(e, "permutohedral submanifold convolution", rb, n, n, input, weight, bias)
}

// PermutohedralSubmanifoldConvolutionBackward is the backward pass of
// PermutohedralSubmanifoldConvolutionUpdateOutput.
func PermutohedralSubmanifoldConvolutionBackward[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, size tensor.Shape, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	rb, err := m.PermutohedralSubmanifoldRuleBook(size)
	if err != nil {
		return nil, err
	}
	n := m.ActiveCount(size)
	return backward(e, "permutohedral submanifold convolution backward", rb, n, n, input, dOutput, weight, grads)
}
