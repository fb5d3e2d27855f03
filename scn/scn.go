// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package scn

import (
	"github.com/go-logr/logr"

	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/scn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Spatial index

// Metadata is the spatial index: active sites per resolution plus the
// rule-book cache.
type Metadata = metadata.Metadata

// Location is an active site: example index plus grid coordinate.
type Location = metadata.Location

// MetadataOption configures a Metadata.
type MetadataOption = metadata.Option

// NewMetadata creates an empty spatial index for dimension spatial
// dimensions.
func NewMetadata(dimension int, opts ...MetadataOption) (*Metadata, error) {
	return metadata.New(dimension, opts...)
}

// WithLogger sets the Metadata logger. Rule-book builds and evictions are
// logged at V(1).
func WithLogger(l logr.Logger) MetadataOption { return metadata.WithLogger(l) }

// WithCacheCapacity sets how many rule books are kept per kind.
func WithCacheCapacity(n int) MetadataOption { return metadata.WithCacheCapacity(n) }

// WithJitterSampler sets the randomized-stride alignment sampler.
func WithJitterSampler(s JitterSampler) MetadataOption { return metadata.WithJitterSampler(s) }

// DefaultCacheCapacity is the rule-book cache capacity per kind.
const DefaultCacheCapacity = metadata.DefaultCacheCapacity

// Rule books

// RuleBook lists (input row, output row) pairs per kernel offset.
type RuleBook = metadata.RuleBook

// Pair associates an input row with an output row.
type Pair = metadata.Pair

// Kind selects the rule-book construction.
type Kind = metadata.Kind

// Rule-book kinds.
const (
	Convolution              = metadata.Convolution
	Submanifold              = metadata.Submanifold
	PermutohedralSubmanifold = metadata.PermutohedralSubmanifold
	FullConvolution          = metadata.FullConvolution
	RandomizedStride         = metadata.RandomizedStride
)

// Request describes a rule-book build for Metadata.BuildRuleBook.
type Request = metadata.Request

// ConvolutionOutputSize returns (in - filter) / stride + 1 per dimension.
func ConvolutionOutputSize(in, filter, stride tensor.Shape) tensor.Shape {
	return metadata.ConvolutionOutputSize(in, filter, stride)
}

// FullConvolutionOutputSize returns (in - 1) * stride + filter per dimension.
func FullConvolutionOutputSize(in, filter, stride tensor.Shape) tensor.Shape {
	return metadata.FullConvolutionOutputSize(in, filter, stride)
}

// PermutohedralVolume returns d*d + d + 1.
func PermutohedralVolume(dimension int) int {
	return metadata.PermutohedralVolume(dimension)
}

// Jitter sampling

// JitterSampler draws randomized-stride window alignments.
type JitterSampler = metadata.JitterSampler

// UniformJitter draws each dimension uniformly from [0, stride).
type UniformJitter = metadata.UniformJitter

// FixedJitter always returns the same alignment.
type FixedJitter = metadata.FixedJitter

// NoJitter aligns every window at its origin.
type NoJitter = metadata.NoJitter

// NewUniformJitter returns a uniform sampler seeded with seed.
func NewUniformJitter(seed uint64) *UniformJitter {
	return metadata.NewUniformJitter(seed)
}

// Errors

// Error values returned by the spatial index and the engine.
var (
	ErrInvalidParams          = metadata.ErrInvalidParams
	ErrDimensionMismatch      = metadata.ErrDimensionMismatch
	ErrUnknownShape           = metadata.ErrUnknownShape
	ErrCoordinateOutOfRange   = metadata.ErrCoordinateOutOfRange
	ErrUnregisteredCoordinate = metadata.ErrUnregisteredCoordinate
	ErrShapeMismatch          = tensor.ErrShapeMismatch
)

// Propagation engine

// Engine runs rule-book driven propagation.
type Engine = kernel.Engine

// EngineOption configures an Engine.
type EngineOption = kernel.Option

// ParallelConfig controls the worker fan-out of an Engine.
type ParallelConfig = parallel.Config

// NewEngine creates an engine with the given worker configuration.
func NewEngine(cfg ParallelConfig, opts ...EngineOption) *Engine {
	return kernel.NewEngine(cfg, opts...)
}

// DefaultEngine returns an engine with one worker per CPU.
func DefaultEngine() *Engine {
	return kernel.Default()
}

// WithEngineLogger sets the engine logger. Per-call costs are logged at V(2).
func WithEngineLogger(l logr.Logger) EngineOption { return kernel.WithLogger(l) }

// Forward adds the convolution of input by weight into output and returns
// the multiply-add count.
func Forward[T tensor.Float](e *Engine, rb *RuleBook, input *tensor.Matrix[T], weight *tensor.Weight[T], output *tensor.Matrix[T]) (int64, error) {
	return kernel.Forward(e, rb, input, weight, output)
}

// BackwardInput adds the input gradient of dOutput into dInput.
func BackwardInput[T tensor.Float](e *Engine, rb *RuleBook, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], dInput *tensor.Matrix[T]) error {
	return kernel.BackwardInput(e, rb, dOutput, weight, dInput)
}

// BackwardWeight adds the weight gradient of dOutput into dWeight.
func BackwardWeight[T tensor.Float](e *Engine, rb *RuleBook, input, dOutput *tensor.Matrix[T], dWeight *tensor.Weight[T]) error {
	return kernel.BackwardWeight(e, rb, input, dOutput, dWeight)
}

// ApplyBias adds bias to every row of output.
func ApplyBias[T tensor.Float](e *Engine, output *tensor.Matrix[T], bias []T) error {
	return kernel.ApplyBias(e, output, bias)
}

// AccumulateBiasGrad adds the per-channel sums of dOutput into dBias.
func AccumulateBiasGrad[T tensor.Float](e *Engine, dOutput *tensor.Matrix[T], dBias []T) error {
	return kernel.AccumulateBiasGrad(e, dOutput, dBias)
}

// Entry points

// Params holds the geometry of a strided convolution.
type Params = scn.Params

// Gradients are write-accumulate parameter gradient buffers.
type Gradients[T tensor.Float] = scn.Gradients[T]

// ConvolutionUpdateOutput runs a strided sparse convolution.
func ConvolutionUpdateOutput[T tensor.Float](e *Engine, m *Metadata, p Params, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	return scn.ConvolutionUpdateOutput(e, m, p, input, weight, bias)
}

// ConvolutionBackward is the backward pass of ConvolutionUpdateOutput.
func ConvolutionBackward[T tensor.Float](e *Engine, m *Metadata, p Params, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	return scn.ConvolutionBackward(e, m, p, input, dOutput, weight, grads)
}

// SubmanifoldConvolutionUpdateOutput runs a submanifold convolution.
func SubmanifoldConvolutionUpdateOutput[T tensor.Float](e *Engine, m *Metadata, size, filterSize tensor.Shape, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	return scn.SubmanifoldConvolutionUpdateOutput(e, m, size, filterSize, input, weight, bias)
}

// SubmanifoldConvolutionBackward is the backward pass of
// SubmanifoldConvolutionUpdateOutput.
func SubmanifoldConvolutionBackward[T tensor.Float](e *Engine, m *Metadata, size, filterSize tensor.Shape, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	return scn.SubmanifoldConvolutionBackward(e, m, size, filterSize, input, dOutput, weight, grads)
}

// PermutohedralSubmanifoldConvolutionUpdateOutput runs a permutohedral
// submanifold convolution.
func PermutohedralSubmanifoldConvolutionUpdateOutput[T tensor.Float](e *Engine, m *Metadata, size tensor.Shape, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	return scn.PermutohedralSubmanifoldConvolutionUpdateOutput(e, m, size, input, weight, bias)
}

// PermutohedralSubmanifoldConvolutionBackward is the backward pass of
// PermutohedralSubmanifoldConvolutionUpdateOutput.
func PermutohedralSubmanifoldConvolutionBackward[T tensor.Float](e *Engine, m *Metadata, size tensor.Shape, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	return scn.PermutohedralSubmanifoldConvolutionBackward(e, m, size, input, dOutput, weight, grads)
}

// FullConvolutionUpdateOutput runs a full convolution from mIn to mOut.
func FullConvolutionUpdateOutput[T tensor.Float](e *Engine, mIn, mOut *Metadata, p Params, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	return scn.FullConvolutionUpdateOutput(e, mIn, mOut, p, input, weight, bias)
}

// FullConvolutionBackward is the backward pass of FullConvolutionUpdateOutput.
func FullConvolutionBackward[T tensor.Float](e *Engine, mIn, mOut *Metadata, p Params, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	return scn.FullConvolutionBackward(e, mIn, mOut, p, input, dOutput, weight, grads)
}

// RandomizedStrideConvolutionUpdateOutput runs a randomized-stride
// convolution.
func RandomizedStrideConvolutionUpdateOutput[T tensor.Float](e *Engine, m *Metadata, p Params, input *tensor.Matrix[T], weight *tensor.Weight[T], bias []T) (*tensor.Matrix[T], int64, error) {
	return scn.RandomizedStrideConvolutionUpdateOutput(e, m, p, input, weight, bias)
}

// RandomizedStrideConvolutionBackward is the backward pass of
// RandomizedStrideConvolutionUpdateOutput.
func RandomizedStrideConvolutionBackward[T tensor.Float](e *Engine, m *Metadata, p Params, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], grads Gradients[T]) (*tensor.Matrix[T], error) {
	return scn.RandomizedStrideConvolutionBackward(e, m, p, input, dOutput, weight, grads)
}
