package nn

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/scn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Convolution is a strided sparse convolution.
//
// Output sites are the windows that contain at least one active input
// site:
//
//	out = (in - filter) / stride + 1
//
// Weight shape: [volume, nIn, nOut] with volume = prod(filter).
//
// Example:
//
//	// Downsample a 3D cloud by 2 with 16 -> 32 channels
//	conv := nn.NewConvolution[float32](3, 16, 32, tensor.Shape{2, 2, 2}, tensor.Shape{2, 2, 2}, false)
//	y, err := conv.Forward(x)
type Convolution[T tensor.Float] struct {
	layer[T]
}

// NewConvolution creates a strided sparse convolution with He-normal
// weights and zero bias.
//
// Parameters:
//   - dimension: Number of spatial dimensions
//   - nIn, nOut: Input and output channels
//   - filterSize, filterStride: Per-dimension kernel extent and stride
//   - bias: Whether to include a bias term
func NewConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize, filterStride tensor.Shape, bias bool, opts ...Option) *Convolution[T] {
	return &Convolution[T]{newLayer[T](metadata.Convolution, dimension, nIn, nOut, filterSize.Volume(), filterSize, filterStride, bias, opts)}
}

// Forward convolves x and returns features at the downsampled size.
func (c *Convolution[T]) Forward(x *SparseTensor[T]) (*SparseTensor[T], error) {
	if err := c.checkInput(x); err != nil {
		return nil, err
	}
	outSize := metadata.ConvolutionOutputSize(x.SpatialSize, c.filter, c.stride)
	out, cost, err := scn.ConvolutionUpdateOutput(c.engine, x.Metadata, c.params(x.SpatialSize, outSize), x.Features, c.weightView, c.Bias())
	if err != nil {
		return nil, err
	}
	c.record(x, out, cost)
	return &SparseTensor[T]{Features: out, Metadata: x.Metadata, SpatialSize: outSize}, nil
}

// Backward accumulates parameter gradients and returns the input gradient.
func (c *Convolution[T]) Backward(dOutput *tensor.Matrix[T]) (*tensor.Matrix[T], error) {
	x, err := c.saved()
	if err != nil {
		return nil, err
	}
	outSize := metadata.ConvolutionOutputSize(x.SpatialSize, c.filter, c.stride)
	return scn.ConvolutionBackward(c.engine, x.Metadata, c.params(x.SpatialSize, outSize), x.Features, dOutput, c.weightView, c.grads())
}

// InputSpatialSize returns (out - 1) * stride + filter.
func (c *Convolution[T]) InputSpatialSize(out tensor.Shape) tensor.Shape {
	return metadata.FullConvolutionOutputSize(out, c.filter, c.stride)
}

// String returns a string representation of the layer.
func (c *Convolution[T]) String() string {
	return fmt.Sprintf("Convolution %d->%d C%s/%s", c.nIn, c.nOut, shapeLabel(c.filter), shapeLabel(c.stride))
}

// SubmanifoldConvolution is a sparse convolution that keeps the active set:
// output sites are the input sites and only active neighbours contribute.
type SubmanifoldConvolution[T tensor.Float] struct {
	layer[T]
}

// NewSubmanifoldConvolution creates a submanifold convolution with a
// centred filterSize footprint.
func NewSubmanifoldConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize tensor.Shape, bias bool, opts ...Option) *SubmanifoldConvolution[T] {
	return &SubmanifoldConvolution[T]{newLayer[T](metadata.Submanifold, dimension, nIn, nOut, filterSize.Volume(), filterSize, nil, bias, opts)}
}

// Forward convolves x; the output shares its Metadata and spatial size.
func (c *SubmanifoldConvolution[T]) Forward(x *SparseTensor[T]) (*SparseTensor[T], error) {
	if err := c.checkInput(x); err != nil {
		return nil, err
	}
	out, cost, err := scn.SubmanifoldConvolutionUpdateOutput(c.engine, x.Metadata, x.SpatialSize, c.filter, x.Features, c.weightView, c.Bias())
	if err != nil {
		return nil, err
	}
	c.record(x, out, cost)
	return &SparseTensor[T]{Features: out, Metadata: x.Metadata, SpatialSize: x.SpatialSize}, nil
}

// Backward accumulates parameter gradients and returns the input gradient.
func (c *SubmanifoldConvolution[T]) Backward(dOutput *tensor.Matrix[T]) (*tensor.Matrix[T], error) {
	x, err := c.saved()
	if err != nil {
		return nil, err
	}
	return scn.SubmanifoldConvolutionBackward(c.engine, x.Metadata, x.SpatialSize, c.filter, x.Features, dOutput, c.weightView, c.grads())
}

// InputSpatialSize returns out unchanged.
func (c *SubmanifoldConvolution[T]) InputSpatialSize(out tensor.Shape) tensor.Shape {
	return out
}

// String returns a string representation of the layer.
func (c *SubmanifoldConvolution[T]) String() string {
	return fmt.Sprintf("SubmanifoldConvolution %d->%d C%s", c.nIn, c.nOut, shapeLabel(c.filter))
}

// PermutohedralSubmanifoldConvolution is a submanifold convolution over
// the permutohedral lattice neighbourhood (d*d + d + 1 offsets).
type PermutohedralSubmanifoldConvolution[T tensor.Float] struct {
	layer[T]
}

// NewPermutohedralSubmanifoldConvolution creates a permutohedral
// submanifold convolution.
func NewPermutohedralSubmanifoldConvolution[T tensor.Float](dimension, nIn, nOut int, bias bool, opts ...Option) *PermutohedralSubmanifoldConvolution[T] {
	volume := metadata.PermutohedralVolume(dimension)
	return &PermutohedralSubmanifoldConvolution[T]{newLayer[T](metadata.PermutohedralSubmanifold, dimension, nIn, nOut, volume, nil, nil, bias, opts)}
}

// Forward convolves x; the output shares its Metadata and spatial size.
func (c *PermutohedralSubmanifoldConvolution[T]) Forward(x *SparseTensor[T]) (*SparseTensor[T], error) {
	if err := c.checkInput(x); err != nil {
		return nil, err
	}
	out, cost, err := scn.PermutohedralSubmanifoldConvolutionUpdateOutput(c.engine, x.Metadata, x.SpatialSize, x.Features, c.weightView, c.Bias())
	if err != nil {
		return nil, err
	}
	c.record(x, out, cost)
	return &SparseTensor[T]{Features: out, Metadata: x.Metadata, SpatialSize: x.SpatialSize}, nil
}

// Backward accumulates parameter gradients and returns the input gradient.
func (c *PermutohedralSubmanifoldConvolution[T]) Backward(dOutput *tensor.Matrix[T]) (*tensor.Matrix[T], error) {
	x, err := c.saved()
	if err != nil {
		return nil, err
	}
	return scn.PermutohedralSubmanifoldConvolutionBackward(c.engine, x.Metadata, x.SpatialSize, x.Features, dOutput, c.weightView, c.grads())
}

// InputSpatialSize returns out unchanged.
func (c *PermutohedralSubmanifoldConvolution[T]) InputSpatialSize(out tensor.Shape) tensor.Shape {
	return out
}

// String returns a string representation of the layer.
func (c *PermutohedralSubmanifoldConvolution[T]) String() string {
	return fmt.Sprintf("PermutohedralSubmanifoldConvolution %d->%d", c.nIn, c.nOut)
}

// FullConvolution is a transposed sparse convolution. Every Forward call
// creates a fresh Metadata for the upsampled sites:
//
//	out = (in - 1) * stride + filter
type FullConvolution[T tensor.Float] struct {
	layer[T]
	output *metadata.Metadata
}

// NewFullConvolution creates a full convolution.
func NewFullConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize, filterStride tensor.Shape, bias bool, opts ...Option) *FullConvolution[T] {
	return &FullConvolution[T]{layer: newLayer[T](metadata.FullConvolution, dimension, nIn, nOut, filterSize.Volume(), filterSize, filterStride, bias, opts)}
}

// Forward upsamples x into a new Metadata.
func (c *FullConvolution[T]) Forward(x *SparseTensor[T]) (*SparseTensor[T], error) {
	if err := c.checkInput(x); err != nil {
		return nil, err
	}
	mOut, err := metadata.New(c.dimension, c.metaOpts...)
	if err != nil {
		return nil, err
	}
	outSize := metadata.FullConvolutionOutputSize(x.SpatialSize, c.filter, c.stride)
	out, cost, err := scn.FullConvolutionUpdateOutput(c.engine, x.Metadata, mOut, c.params(x.SpatialSize, outSize), x.Features, c.weightView, c.Bias())
	if err != nil {
		return nil, err
	}
	c.record(x, out, cost)
	c.output = mOut
	return &SparseTensor[T]{Features: out, Metadata: mOut, SpatialSize: outSize}, nil
}

// Backward accumulates parameter gradients and returns the input gradient.
func (c *FullConvolution[T]) Backward(dOutput *tensor.Matrix[T]) (*tensor.Matrix[T], error) {
	x, err := c.saved()
	if err != nil {
		return nil, err
	}
	outSize := metadata.FullConvolutionOutputSize(x.SpatialSize, c.filter, c.stride)
	return scn.FullConvolutionBackward(c.engine, x.Metadata, c.output, c.params(x.SpatialSize, outSize), x.Features, dOutput, c.weightView, c.grads())
}

// InputSpatialSize returns (out - filter) / stride + 1.
func (c *FullConvolution[T]) InputSpatialSize(out tensor.Shape) tensor.Shape {
	return metadata.ConvolutionOutputSize(out, c.filter, c.stride)
}

// String returns a string representation of the layer.
func (c *FullConvolution[T]) String() string {
	return fmt.Sprintf("FullConvolution %d->%d C%s/%s", c.nIn, c.nOut, shapeLabel(c.filter), shapeLabel(c.stride))
}

// RandomizedStrideConvolution is a strided convolution whose window
// alignment inside each stride is drawn when its rule book is first built.
// Call ResetRandomizedStride on the Metadata at the start of a training
// step to draw a new alignment.
type RandomizedStrideConvolution[T tensor.Float] struct {
	layer[T]
}

// NewRandomizedStrideConvolution creates a randomized-stride convolution.
func NewRandomizedStrideConvolution[T tensor.Float](dimension, nIn, nOut int, filterSize, filterStride tensor.Shape, bias bool, opts ...Option) *RandomizedStrideConvolution[T] {
	return &RandomizedStrideConvolution[T]{newLayer[T](metadata.RandomizedStride, dimension, nIn, nOut, filterSize.Volume(), filterSize, filterStride, bias, opts)}
}

// Forward convolves x and returns features at the downsampled size.
func (c *RandomizedStrideConvolution[T]) Forward(x *SparseTensor[T]) (*SparseTensor[T], error) {
	if err := c.checkInput(x); err != nil {
		return nil, err
	}
	outSize := metadata.ConvolutionOutputSize(x.SpatialSize, c.filter, c.stride)
	out, cost, err := scn.RandomizedStrideConvolutionUpdateOutput(c.engine, x.Metadata, c.params(x.SpatialSize, outSize), x.Features, c.weightView, c.Bias())
	if err != nil {
		return nil, err
	}
	c.record(x, out, cost)
	return &SparseTensor[T]{Features: out, Metadata: x.Metadata, SpatialSize: outSize}, nil
}

// Backward accumulates parameter gradients and returns the input gradient.
func (c *RandomizedStrideConvolution[T]) Backward(dOutput *tensor.Matrix[T]) (*tensor.Matrix[T], error) {
	x, err := c.saved()
	if err != nil {
		return nil, err
	}
	outSize := metadata.ConvolutionOutputSize(x.SpatialSize, c.filter, c.stride)
	return scn.RandomizedStrideConvolutionBackward(c.engine, x.Metadata, c.params(x.SpatialSize, outSize), x.Features, dOutput, c.weightView, c.grads())
}

// InputSpatialSize returns (out - 1) * stride + filter.
func (c *RandomizedStrideConvolution[T]) InputSpatialSize(out tensor.Shape) tensor.Shape {
	return metadata.FullConvolutionOutputSize(out, c.filter, c.stride)
}

// String returns a string representation of the layer.
func (c *RandomizedStrideConvolution[T]) String() string {
	return fmt.Sprintf("RandomizedStrideConvolution %d->%d C%s/%s", c.nIn, c.nOut, shapeLabel(c.filter), shapeLabel(c.stride))
}
