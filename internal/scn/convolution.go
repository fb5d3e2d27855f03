package scn

import (
	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// ConvolutionUpdateOutput runs a strided sparse convolution. Output sites
// not yet registered at p.OutputSize are created by the rule-book build.
// It returns the output features and the multiply-add count.
func ConvolutionUpdateOutput[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, p Params, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	rb, err := m.ConvolutionRuleBook(p.InputSize, p.OutputSize, p.FilterSize, p.FilterStride)
	if err != nil {
		return nil, 0, err
	}
	return updateOutput(e, "convolution", rb, m.ActiveCount(p.InputSize), m.ActiveCount(p.OutputSize), input, weight, bias)
}

// ConvolutionBackward returns the input gradient of a strided sparse
// convolution and accumulates the parameter gradients.
func ConvolutionBackward[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, p Params, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	rb, err := m.ConvolutionRuleBook(p.InputSize, p.OutputSize, p.FilterSize, p.FilterStride)
	if err != nil {
		return nil, err
	}
	return backward(e, "convolution backward", rb, m.ActiveCount(p.InputSize), m.ActiveCount(p.OutputSize), input, dOutput, weight, grads)
}

// RandomizedStrideConvolutionUpdateOutput runs a strided convolution whose
// window alignment was drawn at rule-book build time. The matching
// backward call reuses the same rule book until
// Metadata.ResetRandomizedStride is called.
func RandomizedStrideConvolutionUpdateOutput[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, p Params, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	rb, err := m.RandomizedStrideRuleBook(p.InputSize, p.OutputSize, p.FilterSize, p.FilterStride)
	if err != nil {
		return nil, 0, err
	}
	return updateOutput(e, "randomized stride convolution", rb, m.ActiveCount(p.InputSize), m.ActiveCount(p.OutputSize), input, weight, bias)
}

// RandomizedStrideConvolutionBackward is the backward pass of
// RandomizedStrideConvolutionUpdateOutput.
func RandomizedStrideConvolutionBackward[T tensor.Float](e *kernel.Engine, m *metadata.Metadata, p Params, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	rb, err := m.RandomizedStrideRuleBook(p.InputSize, p.OutputSize, p.FilterSize, p.FilterStride)
	if err != nil {
		return nil, err
	}
	return backward(e, "randomized stride convolution backward", rb, m.ActiveCount(p.InputSize), m.ActiveCount(p.OutputSize), input, dOutput, weight, grads)
}
