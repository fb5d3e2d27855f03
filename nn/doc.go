// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides sparse convolution layers.
//
// # Layers
//
//   - Convolution: strided convolution, output (in - filter) / stride + 1
//   - SubmanifoldConvolution: keeps the active set, centred footprint
//   - PermutohedralSubmanifoldConvolution: lattice neighbourhood, d*d + d + 1 offsets
//   - FullConvolution: transposed convolution into a fresh Metadata
//   - RandomizedStrideConvolution: strided convolution with random window alignment
//
// # Training Loop
//
//	y, err := model.Forward(x)
//	dy := lossGrad(y) // *tensor.Matrix, one row per output site
//	_, err = model.Backward(dy)
//	for _, p := range model.Parameters() {
//	    for i, g := range p.Grad() {
//	        p.Value()[i] -= lr * g
//	    }
//	    p.ZeroGrad()
//	}
//
// Weights use He-normal initialisation with std = sqrt(2 / (nIn * volume));
// biases start at zero.
package nn
