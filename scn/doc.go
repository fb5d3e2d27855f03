// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package scn provides sparse convolutions over point clouds and other
// sparse grids.
//
// # Overview
//
// A Metadata records which grid sites are active at every resolution and
// caches the rule books that connect them. A rule book lists, for every
// kernel offset, the (input row, output row) pairs that contribute; the
// Engine turns it into one gather + GEMM + scatter per offset.
//
// Five constructions are supported:
//   - Convolution: strided, output site o reads o*stride + k
//   - Submanifold: output sites are the input sites, centred footprint
//   - PermutohedralSubmanifold: lattice neighbourhood of d*d + d + 1 offsets
//   - FullConvolution: transposed, into a second Metadata
//   - RandomizedStride: strided with a randomly aligned window grid
//
// # Basic Usage
//
//	m, _ := scn.NewMetadata(3)
//	size := tensor.Shape{128, 128, 128}
//	_, err := m.SetInputSpatialLocations(size, locations)
//
//	e := scn.DefaultEngine()
//	out, cost, err := scn.SubmanifoldConvolutionUpdateOutput(e, m, size, tensor.Shape{3, 3, 3}, features, weight, bias)
//	dIn, err := scn.SubmanifoldConvolutionBackward(e, m, size, tensor.Shape{3, 3, 3}, features, dOut, weight,
//	    scn.Gradients[float32]{Weight: dWeight, Bias: dBias})
//
// # Concurrency
//
// Rule books are immutable once built and shared between goroutines.
// Propagation runs kernel offsets concurrently into private buffers and
// reduces them in a fixed order, so results do not depend on the worker
// count.
package scn
