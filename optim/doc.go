// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for sparse convolution
// layers.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Optimizer interface for custom optimizers
//
// Optimizers consume the gradients that layer Backward accumulates into
// each nn.Parameter and update the parameter values in place.
//
// # Training Loop Pattern
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
//
//	for step := range numSteps {
//	    // 1. Zero gradients
//	    optimizer.ZeroGrad()
//
//	    // 2. Forward pass
//	    y, err := model.Forward(x)
//
//	    // 3. Backward pass with the loss gradient for y.Features
//	    _, err = model.Backward(dy)
//
//	    // 4. Update parameters
//	    optimizer.Step()
//
//	    // 5. New randomized-stride alignments for the next step
//	    x.Metadata.ResetRandomizedStride()
//	}
package optim
