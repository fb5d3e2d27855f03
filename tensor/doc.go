// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// # Overview
//
// Sparse convolutions never store empty grid cells. Features live in a
// dense Matrix with one row per active site; which site a row belongs to is
// recorded by the scn.Metadata that produced it.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/sparseconv/scn"
//	    "github.com/born-ml/sparseconv/tensor"
//	)
//
//	func main() {
//	    m, _ := scn.NewMetadata(2)
//	    size := tensor.Shape{64, 64}
//	    m.SetInputSpatialLocations(size, locations)
//
//	    features, _ := tensor.NewMatrix[float32](m.ActiveCount(size), 3)
//	    weight, _ := tensor.NewWeight[float32](9, 3, 16)
//	    out, cost, err := scn.SubmanifoldConvolutionUpdateOutput(
//	        scn.DefaultEngine(), m, size, tensor.Shape{3, 3}, features, weight, nil)
//	}
//
// # Supported Data Types
//
// Buffers are generic over the Float constraint:
//   - float32 (single precision, BLAS sgemm)
//   - float64 (double precision, BLAS dgemm)
//
// # Weight Layout
//
// Weight[T] stores one [in × out] row-major slice per kernel offset.
// Offsets are flattened row-major over the filter footprint, last
// dimension fastest.
//
// # Errors
//
// Extent mismatches are reported as *ShapeError values that match
// ErrShapeMismatch with errors.Is.
package tensor
