package nn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// randomCloud builds a 2D sparse tensor with n random sites in a size x size grid.
func randomCloud(t *testing.T, seed uint64, size int32, n, channels int) *SparseTensor[float64] {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed))
	m, err := metadata.New(2, metadata.WithJitterSampler(metadata.NewUniformJitter(seed)))
	require.NoError(t, err)

	locs := make([]metadata.Location, n)
	for i := range locs {
		locs[i] = metadata.Location{Example: i % 2, Coord: tensor.Point{r.Int32N(size), r.Int32N(size)}}
	}
	features, err := tensor.NewMatrix[float64](n, channels)
	require.NoError(t, err)
	for i := range features.Data() {
		features.Data()[i] = r.Float64()
	}
	x, err := NewSparseTensor(m, tensor.Shape{int(size), int(size)}, locs, features)
	require.NoError(t, err)
	return x
}

func testEngine() Option {
	return WithEngine(kernel.NewEngine(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}))
}

func TestNewSubmanifoldConvolution_HeInit(t *testing.T) {
	conv := NewSubmanifoldConvolution[float64](3, 16, 32, tensor.Shape{3, 3, 3}, true, WithSeed(1))

	w := conv.Weight()
	assert.Equal(t, 27, w.Volume())
	assert.Equal(t, 16, w.In())
	assert.Equal(t, 32, w.Out())

	var sum, sq float64
	for _, v := range w.Data() {
		sum += v
		sq += v * v
	}
	n := float64(len(w.Data()))
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)
	want := math.Sqrt(2.0 / (16 * 27))
	assert.InDelta(t, 0, mean, want/10)
	assert.InDelta(t, want, std, want*0.05)

	assert.Equal(t, make([]float64, 32), conv.Bias())
	require.Len(t, conv.Parameters(), 2)
	assert.Equal(t, "weight", conv.Parameters()[0].Name())
	assert.Equal(t, "bias", conv.Parameters()[1].Name())
}

func TestNewConvolution_SeedIsReproducible(t *testing.T) {
	a := NewConvolution[float32](2, 4, 8, tensor.Shape{2, 2}, tensor.Shape{2, 2}, false, WithSeed(7))
	b := NewConvolution[float32](2, 4, 8, tensor.Shape{2, 2}, tensor.Shape{2, 2}, false, WithSeed(7))
	assert.Equal(t, a.Weight().Data(), b.Weight().Data())
	assert.Nil(t, a.Bias())
	assert.Nil(t, a.BiasGrad())
	assert.Len(t, a.Parameters(), 1)
}

func TestNewConvolution_InvalidArguments(t *testing.T) {
	assert.Panics(t, func() {
		NewConvolution[float32](2, 0, 8, tensor.Shape{2, 2}, tensor.Shape{2, 2}, false)
	})
	assert.Panics(t, func() {
		NewConvolution[float32](2, 4, 8, tensor.Shape{2}, tensor.Shape{2, 2}, false)
	})
	assert.Panics(t, func() {
		NewSubmanifoldConvolution[float32](0, 4, 8, tensor.Shape{}, false)
	})
	assert.Panics(t, func() {
		NewFullConvolution[float32](2, 4, 8, tensor.Shape{2, 2}, tensor.Shape{0, 2}, false)
	})
}

func TestLayer_String(t *testing.T) {
	tests := []struct {
		name   string
		module interface{ String() string }
		want   string
	}{
		{"submanifold", NewSubmanifoldConvolution[float32](3, 16, 32, tensor.Shape{3, 3, 3}, false), "SubmanifoldConvolution 16->32 C3"},
		{"submanifold anisotropic", NewSubmanifoldConvolution[float32](2, 1, 2, tensor.Shape{3, 5}, false), "SubmanifoldConvolution 1->2 C(3,5)"},
		{"convolution", NewConvolution[float32](2, 8, 16, tensor.Shape{2, 2}, tensor.Shape{2, 2}, false), "Convolution 8->16 C2/2"},
		{"full", NewFullConvolution[float32](2, 16, 8, tensor.Shape{3, 3}, tensor.Shape{1, 2}, false), "FullConvolution 16->8 C3/(1,2)"},
		{"randomized", NewRandomizedStrideConvolution[float32](1, 2, 3, tensor.Shape{3}, tensor.Shape{2}, false), "RandomizedStrideConvolution 2->3 C3/2"},
		{"permutohedral", NewPermutohedralSubmanifoldConvolution[float32](3, 4, 4, false), "PermutohedralSubmanifoldConvolution 4->4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.module.String())
		})
	}
}

func TestSubmanifoldConvolution_ForwardBackward(t *testing.T) {
	x := randomCloud(t, 1, 16, 60, 3)
	stats := &Stats{}
	conv := NewSubmanifoldConvolution[float64](2, 3, 4, tensor.Shape{3, 3}, true, WithSeed(2), WithStats(stats), testEngine())
	copy(conv.Bias(), []float64{1, 2, 3, 4})

	y, err := conv.Forward(x)
	require.NoError(t, err)
	assert.Same(t, x.Metadata, y.Metadata)
	assert.Equal(t, x.SpatialSize, y.SpatialSize)
	assert.Equal(t, x.ActiveCount(), y.ActiveCount())
	assert.Equal(t, 4, y.Channels())

	rb, err := x.Metadata.SubmanifoldRuleBook(x.SpatialSize, tensor.Shape{3, 3})
	require.NoError(t, err)
	assert.Equal(t, rb.Cost(3, 4), stats.MultiplyAdds())
	assert.Equal(t, int64(y.ActiveCount()*4), stats.HiddenStates())

	dOut, err := tensor.NewMatrix[float64](y.ActiveCount(), 4)
	require.NoError(t, err)
	for i := range dOut.Data() {
		dOut.Data()[i] = 1
	}
	dIn, err := conv.Backward(dOut)
	require.NoError(t, err)
	assert.Equal(t, x.ActiveCount(), dIn.Rows())
	assert.Equal(t, 3, dIn.Cols())
	for _, g := range conv.BiasGrad() {
		assert.Equal(t, float64(y.ActiveCount()), g)
	}

	conv.ZeroGrad()
	for _, p := range conv.Parameters() {
		for _, g := range p.Grad() {
			assert.Zero(t, g)
		}
	}
}

func TestConvolution_DownAndUp(t *testing.T) {
	x := randomCloud(t, 3, 16, 80, 2)
	down := NewConvolution[float64](2, 2, 4, tensor.Shape{2, 2}, tensor.Shape{2, 2}, false, WithSeed(3), WithStats(&Stats{}))
	up := NewFullConvolution[float64](2, 4, 2, tensor.Shape{2, 2}, tensor.Shape{2, 2}, false, WithSeed(4), WithStats(&Stats{}))

	y, err := down.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{8, 8}, y.SpatialSize)
	assert.Equal(t, x.SpatialSize, down.InputSpatialSize(y.SpatialSize))
	assert.Equal(t, x.Metadata.ActiveCount(y.SpatialSize), y.ActiveCount())

	z, err := up.Forward(y)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{16, 16}, z.SpatialSize)
	assert.NotSame(t, x.Metadata, z.Metadata, "full convolution creates its own metadata")
	assert.Equal(t, y.SpatialSize, up.InputSpatialSize(z.SpatialSize))
	// Every coarse site expands to its 4 children.
	assert.Equal(t, 4*y.ActiveCount(), z.ActiveCount())

	dz, err := tensor.NewMatrix[float64](z.ActiveCount(), 2)
	require.NoError(t, err)
	dy, err := up.Backward(dz)
	require.NoError(t, err)
	assert.Equal(t, y.ActiveCount(), dy.Rows())
	dx, err := down.Backward(dy)
	require.NoError(t, err)
	assert.Equal(t, x.ActiveCount(), dx.Rows())
}

func TestRandomizedStrideConvolution_BackwardReusesWindows(t *testing.T) {
	x := randomCloud(t, 5, 12, 50, 2)
	conv := NewRandomizedStrideConvolution[float64](2, 2, 3, tensor.Shape{3, 3}, tensor.Shape{2, 2}, false, WithSeed(5), WithStats(&Stats{}))

	y, err := conv.Forward(x)
	require.NoError(t, err)
	jitter, ok := x.Metadata.RandomizedStrideJitter(x.SpatialSize, y.SpatialSize, tensor.Shape{3, 3}, tensor.Shape{2, 2})
	require.True(t, ok)
	for _, j := range jitter {
		assert.GreaterOrEqual(t, j, 0)
		assert.Less(t, j, 2)
	}

	dOut, err := tensor.NewMatrix[float64](y.ActiveCount(), 3)
	require.NoError(t, err)
	_, err = conv.Backward(dOut)
	require.NoError(t, err)

	after, ok := x.Metadata.RandomizedStrideJitter(x.SpatialSize, y.SpatialSize, tensor.Shape{3, 3}, tensor.Shape{2, 2})
	require.True(t, ok)
	assert.Equal(t, jitter, after)
}

func TestPermutohedralSubmanifoldConvolution_Forward(t *testing.T) {
	x := randomCloud(t, 6, 10, 30, 2)
	conv := NewPermutohedralSubmanifoldConvolution[float64](2, 2, 5, false, WithSeed(6), WithStats(&Stats{}))
	assert.Equal(t, 7, conv.Weight().Volume())

	y, err := conv.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, x.ActiveCount(), y.ActiveCount())
	assert.Equal(t, x.SpatialSize, conv.InputSpatialSize(y.SpatialSize))
}

func TestLayer_Errors(t *testing.T) {
	conv := NewSubmanifoldConvolution[float64](2, 3, 4, tensor.Shape{3, 3}, false, WithStats(&Stats{}))

	_, err := conv.Backward(nil)
	assert.ErrorIs(t, err, ErrNoForward)

	_, err = conv.Forward(nil)
	assert.ErrorIs(t, err, metadata.ErrInvalidParams)

	x := randomCloud(t, 7, 8, 10, 2)
	_, err = conv.Forward(x)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	m3, err := metadata.New(3)
	require.NoError(t, err)
	_, err = conv.Forward(&SparseTensor[float64]{Features: x.Features, Metadata: m3, SpatialSize: tensor.Shape{8, 8, 8}})
	assert.ErrorIs(t, err, metadata.ErrDimensionMismatch)

	_, err = conv.Forward(&SparseTensor[float64]{Features: x.Features, Metadata: x.Metadata, SpatialSize: tensor.Shape{8}})
	assert.ErrorIs(t, err, metadata.ErrDimensionMismatch)
}

func TestDefaultStats(t *testing.T) {
	DefaultStats.Reset()
	x := randomCloud(t, 8, 8, 20, 1)
	conv := NewSubmanifoldConvolution[float64](2, 1, 1, tensor.Shape{1, 1}, false, WithSeed(8))
	_, err := conv.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, int64(x.ActiveCount()), DefaultStats.MultiplyAdds())
	assert.Equal(t, int64(x.ActiveCount()), DefaultStats.HiddenStates())
	DefaultStats.Reset()
	assert.Zero(t, DefaultStats.MultiplyAdds())
}
