// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public dense buffer types exchanged with the
// sparse convolution core.
//
// The package defines:
//   - Matrix[T]: Feature matrix, one row per active site
//   - Weight[T]: Convolution weights [volume, in, out]
//   - Shape, Point: Spatial sizes and grid coordinates
//   - DataType: Runtime tag for float32 / float64
//
// Example:
//
//	features, _ := tensor.NewMatrix[float32](n, 16)
//	weight, _ := tensor.NewWeight[float32](27, 16, 32)
package tensor

import (
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Type aliases for public API

// Float is the constraint for buffer element types: float32 or float64.
type Float = tensor.Float

// DataType represents the element type of a buffer at runtime.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Shape is a spatial size, filter size or stride.
type Shape = tensor.Shape

// Point is an integer grid coordinate.
type Point = tensor.Point

// Matrix is a dense row-major [rows × cols] feature buffer.
type Matrix[T Float] = tensor.Matrix[T]

// Weight is a convolution weight tensor [volume × in × out].
type Weight[T Float] = tensor.Weight[T]

// ShapeError reports a buffer extent that disagrees with the expected one.
type ShapeError = tensor.ShapeError

// ErrShapeMismatch is matched by every *ShapeError.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// NewMatrix allocates a zero-filled matrix.
func NewMatrix[T Float](rows, cols int) (*Matrix[T], error) {
	return tensor.NewMatrix[T](rows, cols)
}

// MatrixFrom wraps data as a rows × cols matrix without copying.
func MatrixFrom[T Float](rows, cols int, data []T) (*Matrix[T], error) {
	return tensor.MatrixFrom(rows, cols, data)
}

// NewWeight allocates a zero-filled weight tensor.
func NewWeight[T Float](volume, in, out int) (*Weight[T], error) {
	return tensor.NewWeight[T](volume, in, out)
}

// WeightFrom wraps data as a volume × in × out weight tensor without copying.
func WeightFrom[T Float](volume, in, out int, data []T) (*Weight[T], error) {
	return tensor.WeightFrom(volume, in, out, data)
}

// Filled returns a shape of the given rank with every extent set to v.
func Filled(rank, v int) Shape {
	return tensor.Filled(rank, v)
}

// DataTypeOf returns the runtime tag for T.
func DataTypeOf[T Float]() DataType {
	return tensor.DataTypeOf[T]()
}
