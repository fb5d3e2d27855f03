// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand/v2"

	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Parameter represents a trainable buffer with a write-accumulate gradient.
type Parameter[T tensor.Float] = nn.Parameter[T]

// NewParameter creates a new parameter wrapping value.
func NewParameter[T tensor.Float](name string, value []T) *Parameter[T] {
	return nn.NewParameter(name, value)
}

// SparseTensor is a feature matrix plus the Metadata and spatial size that
// index its rows.
type SparseTensor[T tensor.Float] = nn.SparseTensor[T]

// NewSparseTensor registers locations at size in m and returns one feature
// row per active site. Features of duplicate locations are summed.
func NewSparseTensor[T tensor.Float](m *metadata.Metadata, size tensor.Shape, locations []metadata.Location, features *tensor.Matrix[T]) (*SparseTensor[T], error) {
	return nn.NewSparseTensor(m, size, locations, features)
}

// Options

// Option configures a layer.
type Option = nn.Option

// WithEngine sets the propagation engine of a layer.
func WithEngine(e *kernel.Engine) Option { return nn.WithEngine(e) }

// WithRand sets the random source used for weight initialisation.
func WithRand(r *rand.Rand) Option { return nn.WithRand(r) }

// WithSeed initialises weights from a PCG source seeded with seed.
func WithSeed(seed uint64) Option { return nn.WithSeed(seed) }

// WithStats sets the counters updated by Forward.
func WithStats(s *Stats) Option { return nn.WithStats(s) }

// WithMetadataOptions sets the options of Metadata created by a layer.
func WithMetadataOptions(opts ...metadata.Option) Option { return nn.WithMetadataOptions(opts...) }

// Layers

// Convolution represents a strided sparse convolution.
type Convolution[T tensor.Float] = nn.Convolution[T]

// NewConvolution creates a strided sparse convolution.
//
// Example:
//
//	conv := nn.NewConvolution[float32](3, 16, 32, tensor.Shape{2, 2, 2}, tensor.Shape{2, 2, 2}, false)
func NewConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize, filterStride tensor.Shape, bias bool, opts ...Option) *Convolution[T] {
	return nn.NewConvolution[T](dimension, nIn, nOut, filterSize, filterStride, bias, opts...)
}

// SubmanifoldConvolution represents a sparse convolution that keeps the
// active set.
type SubmanifoldConvolution[T tensor.Float] = nn.SubmanifoldConvolution[T]

// NewSubmanifoldConvolution creates a submanifold convolution.
//
// Example:
//
//	conv := nn.NewSubmanifoldConvolution[float32](3, 1, 16, tensor.Shape{3, 3, 3}, true)
func NewSubmanifoldConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize tensor.Shape, bias bool, opts ...Option) *SubmanifoldConvolution[T] {
	return nn.NewSubmanifoldConvolution[T](dimension, nIn, nOut, filterSize, bias, opts...)
}

// PermutohedralSubmanifoldConvolution represents a submanifold convolution
// over the permutohedral lattice neighbourhood.
type PermutohedralSubmanifoldConvolution[T tensor.Float] = nn.PermutohedralSubmanifoldConvolution[T]

// NewPermutohedralSubmanifoldConvolution creates a permutohedral submanifold
// convolution.
func NewPermutohedralSubmanifoldConvolution[T tensor.Float](dimension, nIn, nOut int, bias bool, opts ...Option) *PermutohedralSubmanifoldConvolution[T] {
	return nn.NewPermutohedralSubmanifoldConvolution[T](dimension, nIn, nOut, bias, opts...)
}

// FullConvolution represents a transposed sparse convolution.
type FullConvolution[T tensor.Float] = nn.FullConvolution[T]

// NewFullConvolution creates a full convolution.
func NewFullConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize, filterStride tensor.Shape, bias bool, opts ...Option) *FullConvolution[T] {
	return nn.NewFullConvolution[T](dimension, nIn, nOut, filterSize, filterStride, bias, opts...)
}

// RandomizedStrideConvolution represents a strided convolution with a
// randomly aligned window grid.
type RandomizedStrideConvolution[T tensor.Float] = nn.RandomizedStrideConvolution[T]

// NewRandomizedStrideConvolution creates a randomized-stride convolution.
func NewRandomizedStrideConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize, filterStride tensor.Shape, bias bool, opts ...Option) *RandomizedStrideConvolution[T] {
	return nn.NewRandomizedStrideConvolution[T](dimension, nIn, nOut, filterSize, filterStride, bias, opts...)
}

// Containers

// Sequential chains modules.
type Sequential[T tensor.Float] = nn.Sequential[T]

// NewSequential creates a new Sequential container.
func NewSequential[T tensor.Float](modules ...Module[T]) *Sequential[T] {
	return nn.NewSequential(modules...)
}

// Statistics

// Stats counts multiply-adds and hidden states produced by layers.
type Stats = nn.Stats

// DefaultStats is updated by layers created without WithStats.
var DefaultStats = nn.DefaultStats

// ErrNoForward is returned by Backward when no Forward call preceded it.
var ErrNoForward = nn.ErrNoForward

// HeNormal fills data with values drawn from N(0, 2/fanIn).
func HeNormal[T tensor.Float](r *rand.Rand, fanIn int, data []T) {
	nn.HeNormal(r, fanIn, data)
}
