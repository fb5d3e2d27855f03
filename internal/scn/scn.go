// Package scn exposes the sparse convolution entry points: one
// UpdateOutput / Backward pair per rule-book kind. Each call resolves the
// rule book through the Metadata cache, validates buffers against active
// counts and channel counts, and runs the propagation engine.
package scn

import (
	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Params holds the geometry of a strided convolution.
type Params struct {
	InputSize    tensor.Shape
	OutputSize   tensor.Shape
	FilterSize   tensor.Shape
	FilterStride tensor.Shape
}

// Gradients are write-accumulate buffers filled by the Backward calls.
// A nil Weight skips the weight gradient; an empty Bias skips the bias
// gradient.
type Gradients[T tensor.Float] struct {
	Weight *tensor.Weight[T]
	Bias   []T
}

// validateParams checks the buffers of a propagation call before any work
// is done, including calls with no active sites.
func validateParams[T tensor.Float](op string, rb *metadata.RuleBook, nIn int, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) error {
	if err := tensor.CheckExtent(op, "kernel volume", weight.Volume(), rb.Volume()); err != nil {
		return err
	}
	if err := tensor.CheckExtent(op, "input rows", input.Rows(), nIn); err != nil {
		return err
	}
	if err := tensor.CheckExtent(op, "input channels", input.Cols(), weight.In()); err != nil {
		return err
	}
	if len(bias) > 0 {
		if err := tensor.CheckExtent(op, "bias length", len(bias), weight.Out()); err != nil {
			return err
		}
	}
	return nil
}

// updateOutput allocates the output features, initialises them with the
// bias (or zeros) and adds the convolution.
func updateOutput[T tensor.Float](e *kernel.Engine, op string, rb *metadata.RuleBook, nIn, nOut int, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	if err := validateParams(op, rb, nIn, input, weight, bias); err != nil {
		return nil, 0, err
	}
	output, err := tensor.NewMatrix[T](nOut, weight.Out())
	if err != nil {
		return nil, 0, err
	}
	if nOut == 0 {
		return output, 0, nil
	}

	if len(bias) > 0 {
		if err := kernel.FillBias(e, output, bias); err != nil {
			return nil, 0, err
		}
	} else {
		output.Zero()
	}
	cost, err := kernel.Forward(e, rb, input, weight, output)
	if err != nil {
		return nil, 0, err
	}
	return output, cost, nil
}

// backward returns the zero-initialised input gradient after adding the
// contribution of dOutput, and accumulates the requested parameter
// gradients.
func backward[T tensor.Float](e *kernel.Engine, op string, rb *metadata.RuleBook, nIn, nOut int, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	if err := validateParams(op, rb, nIn, input, weight, grads.Bias); err != nil {
		return nil, err
	}
	if err := tensor.CheckExtent(op, "output gradient rows", dOutput.Rows(), nOut); err != nil {
		return nil, err
	}
	if err := tensor.CheckExtent(op, "output gradient channels", dOutput.Cols(), weight.Out()); err != nil {
		return nil, err
	}
	if dW := grads.Weight; dW != nil {
		if err := tensor.CheckExtent(op, "weight gradient volume", dW.Volume(), weight.Volume()); err != nil {
			return nil, err
		}
		if err := tensor.CheckExtent(op, "weight gradient input channels", dW.In(), weight.In()); err != nil {
			return nil, err
		}
		if err := tensor.CheckExtent(op, "weight gradient output channels", dW.Out(), weight.Out()); err != nil {
			return nil, err
		}
	}
	dInput, err := tensor.NewMatrix[T](nIn, weight.In())
	if err != nil {
		return nil, err
	}
	if nOut == 0 {
		return dInput, nil
	}

	if err := kernel.Backward(e, rb, input, dOutput, weight, dInput, grads.Weight); err != nil {
		return nil, err
	}
	if len(grads.Bias) > 0 {
		if err := kernel.AccumulateBiasGrad(e, dOutput, grads.Bias); err != nil {
			return nil, err
		}
	}
	return dInput, nil
}
