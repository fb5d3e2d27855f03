// Package optim implements optimization algorithms for sparse convolution
// layers.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers read the write-accumulate gradient buffers that layer Backward
// fills and update the parameter values in place.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.001})
//
//	for step := range steps {
//	    y, _ := model.Forward(x)
//	    _, _ = model.Backward(lossGrad(y))
//	    optimizer.Step()
//	    optimizer.ZeroGrad()
//	    m.ResetRandomizedStride()
//	}
package optim

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Step: Apply accumulated gradients to parameters
//   - ZeroGrad: Clear gradients before next iteration
//   - GetLR: Get current learning rate (for monitoring/scheduling)
type Optimizer interface {
	// Step applies the gradients accumulated in every parameter.
	Step()

	// ZeroGrad clears all parameter gradients.
	//
	// Gradient buffers are write-accumulate, so this must run between
	// training steps.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float64 // Learning rate
}
