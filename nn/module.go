// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/sparseconv/internal/nn"
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
//
// Note: Internal implementations automatically satisfy this interface
// because they have the same method signatures.
type Module[T tensor.Float] = nn.Module[T]
