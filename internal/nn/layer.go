package nn

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/scn"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// ErrNoForward is returned by Backward when no Forward call preceded it.
var ErrNoForward = errors.New("backward called before forward")

// Option configures a layer.
type Option func(*options)

type options struct {
	engine   *kernel.Engine
	rng      *rand.Rand
	stats    *Stats
	metaOpts []metadata.Option
}

// WithEngine sets the propagation engine. The default uses
// parallel.DefaultConfig.
func WithEngine(e *kernel.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithRand sets the random source used for weight initialisation.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithSeed initialises weights from a PCG source seeded with seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// WithStats sets the counters updated by Forward.
func WithStats(s *Stats) Option {
	return func(o *options) { o.stats = s }
}

// WithMetadataOptions sets the options of Metadata created by the layer
// (FullConvolution output indices).
func WithMetadataOptions(opts ...metadata.Option) Option {
	return func(o *options) { o.metaOpts = opts }
}

// layer is the state shared by every sparse convolution: parameters,
// geometry, the engine and the input saved by the last Forward.
type layer[T tensor.Float] struct {
	kind      metadata.Kind
	dimension int
	nIn       int
	nOut      int
	filter    tensor.Shape
	stride    tensor.Shape

	weight     *Parameter[T] // [volume, nIn, nOut]
	bias       *Parameter[T] // [nOut] or nil
	weightView *tensor.Weight[T]
	gradView   *tensor.Weight[T]

	engine   *kernel.Engine
	stats    *Stats
	metaOpts []metadata.Option

	input *SparseTensor[T]
}

func newLayer[T tensor.Float](kind metadata.Kind, dimension, nIn, nOut, volume int, filter, stride tensor.Shape, useBias bool, opts []Option) layer[T] {
	name := kind.String()
	if dimension <= 0 {
		panic(fmt.Sprintf("%s: invalid dimension %d", name, dimension))
	}
	if nIn <= 0 || nOut <= 0 {
		panic(fmt.Sprintf("%s: invalid channels in=%d, out=%d", name, nIn, nOut))
	}
	if filter != nil {
		if err := filter.Validate(dimension); err != nil {
			panic(fmt.Sprintf("%s: filter size: %v", name, err))
		}
	}
	if stride != nil {
		if err := stride.Validate(dimension); err != nil {
			panic(fmt.Sprintf("%s: filter stride: %v", name, err))
		}
	}

	o := options{stats: DefaultStats}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = kernel.Default()
	}
	if o.rng == nil {
		o.rng = newRand()
	}

	// He initialisation: fan_in = nIn * volume.
	w := make([]T, volume*nIn*nOut)
	HeNormal(o.rng, nIn*volume, w)
	weight := NewParameter("weight", w)
	weightView, _ := tensor.WeightFrom(volume, nIn, nOut, weight.Value())
	gradView, _ := tensor.WeightFrom(volume, nIn, nOut, weight.Grad())

	var bias *Parameter[T]
	if useBias {
		bias = NewParameter("bias", make([]T, nOut))
	}

	return layer[T]{
		kind:       kind,
		dimension:  dimension,
		nIn:        nIn,
		nOut:       nOut,
		filter:     filter.Clone(),
		stride:     stride.Clone(),
		weight:     weight,
		bias:       bias,
		weightView: weightView,
		gradView:   gradView,
		engine:     o.engine,
		stats:      o.stats,
		metaOpts:   o.metaOpts,
	}
}

// Parameters returns the weight and, when present, the bias.
func (l *layer[T]) Parameters() []*Parameter[T] {
	if l.bias != nil {
		return []*Parameter[T]{l.weight, l.bias}
	}
	return []*Parameter[T]{l.weight}
}

// Weight returns the weight tensor [volume, nIn, nOut].
func (l *layer[T]) Weight() *tensor.Weight[T] { return l.weightView }

// WeightGrad returns the accumulated weight gradient.
func (l *layer[T]) WeightGrad() *tensor.Weight[T] { return l.gradView }

// Bias returns the bias vector, nil without bias.
func (l *layer[T]) Bias() []T {
	if l.bias == nil {
		return nil
	}
	return l.bias.Value()
}

// BiasGrad returns the accumulated bias gradient, nil without bias.
func (l *layer[T]) BiasGrad() []T {
	if l.bias == nil {
		return nil
	}
	return l.bias.Grad()
}

// ZeroGrad clears all parameter gradients.
func (l *layer[T]) ZeroGrad() {
	for _, p := range l.Parameters() {
		p.ZeroGrad()
	}
}

// InChannels returns the number of input channels.
func (l *layer[T]) InChannels() int { return l.nIn }

// OutChannels returns the number of output channels.
func (l *layer[T]) OutChannels() int { return l.nOut }

// Dimension returns the number of spatial dimensions.
func (l *layer[T]) Dimension() int { return l.dimension }

func (l *layer[T]) grads() scn.Gradients[T] {
	return scn.Gradients[T]{Weight: l.gradView, Bias: l.BiasGrad()}
}

func (l *layer[T]) checkInput(x *SparseTensor[T]) error {
	name := l.kind.String()
	if x == nil || x.Features == nil || x.Metadata == nil {
		return fmt.Errorf("%s: incomplete input tensor: %w", name, metadata.ErrInvalidParams)
	}
	if x.Metadata.Dimension() != l.dimension {
		return fmt.Errorf("%s: input metadata is %dD, want %dD: %w",
			name, x.Metadata.Dimension(), l.dimension, metadata.ErrDimensionMismatch)
	}
	if err := x.SpatialSize.Validate(l.dimension); err != nil {
		return fmt.Errorf("%s: input spatial size: %v: %w", name, err, metadata.ErrDimensionMismatch)
	}
	return tensor.CheckExtent(name, "input channels", x.Features.Cols(), l.nIn)
}

// record saves the input for Backward and updates the counters.
func (l *layer[T]) record(x *SparseTensor[T], out *tensor.Matrix[T], cost int64) {
	l.input = x
	l.stats.add(cost, int64(out.Rows())*int64(out.Cols()))
}

func (l *layer[T]) saved() (*SparseTensor[T], error) {
	if l.input == nil {
		return nil, fmt.Errorf("%s: %w", l.kind, ErrNoForward)
	}
	return l.input, nil
}

func (l *layer[T]) params(inputSize, outputSize tensor.Shape) scn.Params {
	return scn.Params{
		InputSize:    inputSize,
		OutputSize:   outputSize,
		FilterSize:   l.filter,
		FilterStride: l.stride,
	}
}

// shapeLabel formats a filter size or stride the way layer names show
// them: "3" when every extent is equal, "(3,5)" otherwise.
func shapeLabel(s tensor.Shape) string {
	uniform := true
	for _, v := range s[1:] {
		if v != s[0] {
			uniform = false
		}
	}
	if uniform {
		return strconv.Itoa(s[0])
	}
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
