package scn

import (
	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// FullConvolutionUpdateOutput runs a full (transposed) convolution from
// the sites of mIn at p.InputSize to the sites of mOut at p.OutputSize.
// Output sites already registered in mOut keep their rows; new ones are
// appended.
func FullConvolutionUpdateOutput[T tensor.Float](e *kernel.Engine, mIn, mOut *metadata.Metadata, p Params, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	rb, err := mIn.FullConvolutionRuleBook(p.InputSize, p.OutputSize, p.FilterSize, p.FilterStride, mOut)
	if err != nil {
		return nil, 0, err
	}
	return updateOutput(e, "full convolution", rb, mIn.ActiveCount(p.InputSize), mOut.ActiveCount(p.OutputSize), input, weight, bias)
}

// FullConvolutionBackward is the backward pass of
// FullConvolutionUpdateOutput.
func FullConvolutionBackward[T tensor.Float](e *kernel.Engine, mIn, mOut *metadata.Metadata, p Params, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	rb, err := mIn.FullConvolutionRuleBook(p.InputSize, p.OutputSize, p.FilterSize, p.FilterStride, mOut)
	if err != nil {
		return nil, err
	}
	return backward(e, "full convolution backward", rb, mIn.ActiveCount(p.InputSize), mOut.ActiveCount(p.OutputSize), input, dOutput, weight, grads)
}
