package kernel

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/tensor"
)

func eager() *Engine {
	return NewEngine(parallel.Config{Enabled: true, NumWorkers: 8, MinChunkSize: 1})
}

func sequential() *Engine {
	return NewEngine(parallel.Sequential())
}

func randomFill[T tensor.Float](r *rand.Rand, data []T) {
	for i := range data {
		data[i] = T(r.Float64()*2 - 1)
	}
}

func matrix[T tensor.Float](t *testing.T, rows, cols int) *tensor.Matrix[T] {
	t.Helper()
	m, err := tensor.NewMatrix[T](rows, cols)
	require.NoError(t, err)
	return m
}

func weight[T tensor.Float](t *testing.T, volume, in, out int) *tensor.Weight[T] {
	t.Helper()
	w, err := tensor.NewWeight[T](volume, in, out)
	require.NoError(t, err)
	return w
}

// cloud registers n random sites of a size x size grid and returns the
// metadata with the number of distinct active sites.
func cloud(t *testing.T, r *rand.Rand, size int32, n int) (*metadata.Metadata, int) {
	t.Helper()
	m, err := metadata.New(2, metadata.WithJitterSampler(metadata.NoJitter{}))
	require.NoError(t, err)
	locs := make([]metadata.Location, n)
	for i := range locs {
		locs[i] = metadata.Location{Coord: tensor.Point{r.Int32N(size), r.Int32N(size)}}
	}
	_, err = m.SetInputSpatialLocations(tensor.Shape{int(size), int(size)}, locs)
	require.NoError(t, err)
	return m, m.ActiveCount(tensor.Shape{int(size), int(size)})
}

// naiveForward applies the rule book pair by pair.
func naiveForward(rb *metadata.RuleBook, in *tensor.Matrix[float64], w *tensor.Weight[float64], out *tensor.Matrix[float64]) {
	for k := 0; k < rb.Volume(); k++ {
		wk := w.Offset(k)
		for _, p := range rb.Bucket(k) {
			for i := 0; i < w.In(); i++ {
				for j := 0; j < w.Out(); j++ {
					out.Row(int(p.Out))[j] += in.At(int(p.In), i) * wk[i*w.Out()+j]
				}
			}
		}
	}
}

func TestForward_Scenario(t *testing.T) {
	// 1D, 4 sites, filter 2, stride 2, one channel in and out.
	m, err := metadata.New(1)
	require.NoError(t, err)
	locs := make([]metadata.Location, 4)
	for i := range locs {
		locs[i] = metadata.Location{Coord: tensor.Point{int32(i)}}
	}
	_, err = m.SetInputSpatialLocations(tensor.Shape{4}, locs)
	require.NoError(t, err)
	rb, err := m.ConvolutionRuleBook(tensor.Shape{4}, tensor.Shape{2}, tensor.Shape{2}, tensor.Shape{2})
	require.NoError(t, err)

	in, err := tensor.MatrixFrom(4, 1, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	w, err := tensor.WeightFrom(2, 1, 1, []float32{10, 100})
	require.NoError(t, err)
	out := matrix[float32](t, 2, 1)

	cost, err := Forward(eager(), rb, in, w, out)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cost)
	assert.Equal(t, []float32{1*10 + 2*100, 3*10 + 4*100}, out.Data())

	// Accumulates on top of the existing value.
	_, err = Forward(eager(), rb, in, w, out)
	require.NoError(t, err)
	assert.Equal(t, []float32{420, 860}, out.Data())
}

func TestForward_MatchesNaive(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	m, n := cloud(t, r, 16, 80)
	size := tensor.Shape{16, 16}

	rb, err := m.SubmanifoldRuleBook(size, tensor.Shape{3, 3})
	require.NoError(t, err)

	in := matrix[float64](t, n, 5)
	w := weight[float64](t, 9, 5, 7)
	randomFill(r, in.Data())
	randomFill(r, w.Data())

	got := matrix[float64](t, n, 7)
	want := matrix[float64](t, n, 7)
	_, err = Forward(eager(), rb, in, w, got)
	require.NoError(t, err)
	naiveForward(rb, in, w, want)

	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-12)
}

func TestForward_ZeroRows(t *testing.T) {
	m, err := metadata.New(2)
	require.NoError(t, err)
	require.NoError(t, m.RegisterShape(tensor.Shape{4, 4}))
	rb, err := m.ConvolutionRuleBook(tensor.Shape{4, 4}, tensor.Shape{2, 2}, tensor.Shape{2, 2}, tensor.Shape{2, 2})
	require.NoError(t, err)

	cost, err := Forward(eager(), rb, matrix[float32](t, 0, 3), weight[float32](t, 4, 3, 2), matrix[float32](t, 0, 2))
	require.NoError(t, err)
	assert.Zero(t, cost)
}

func TestForward_ShapeErrors(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	m, n := cloud(t, r, 8, 10)
	rb, err := m.SubmanifoldRuleBook(tensor.Shape{8, 8}, tensor.Shape{3, 3})
	require.NoError(t, err)

	var shapeErr *tensor.ShapeError

	_, err = Forward(sequential(), rb, matrix[float32](t, n, 2), weight[float32](t, 4, 2, 2), matrix[float32](t, n, 2))
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "kernel volume", shapeErr.What)

	_, err = Forward(sequential(), rb, matrix[float32](t, n, 3), weight[float32](t, 9, 2, 2), matrix[float32](t, n, 2))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = Forward(sequential(), rb, matrix[float32](t, n, 2), weight[float32](t, 9, 2, 2), matrix[float32](t, n, 3))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	// Too few rows for the rule book.
	_, err = Forward(sequential(), rb, matrix[float32](t, n-1, 2), weight[float32](t, 9, 2, 2), matrix[float32](t, n, 2))
	assert.ErrorIs(t, err, metadata.ErrUnregisteredCoordinate)
}

func TestBackward_FiniteDifferences(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	m, n := cloud(t, r, 12, 40)
	size := tensor.Shape{12, 12}
	outSize := metadata.ConvolutionOutputSize(size, tensor.Shape{3, 3}, tensor.Shape{2, 2})
	rb, err := m.ConvolutionRuleBook(size, outSize, tensor.Shape{3, 3}, tensor.Shape{2, 2})
	require.NoError(t, err)
	nOut := m.ActiveCount(outSize)

	in := matrix[float64](t, n, 3)
	w := weight[float64](t, 9, 3, 4)
	g := matrix[float64](t, nOut, 4)
	randomFill(r, in.Data())
	randomFill(r, w.Data())
	randomFill(r, g.Data())

	loss := func() float64 {
		out := matrix[float64](t, nOut, 4)
		_, err := Forward(sequential(), rb, in, w, out)
		require.NoError(t, err)
		var s float64
		for i, v := range out.Data() {
			s += v * g.Data()[i]
		}
		return s
	}

	dIn := matrix[float64](t, n, 3)
	dW := weight[float64](t, 9, 3, 4)
	require.NoError(t, Backward(eager(), rb, in, g, w, dIn, dW))

	const eps = 1e-6
	check := func(data []float64, grad []float64, idx int) {
		orig := data[idx]
		data[idx] = orig + eps
		up := loss()
		data[idx] = orig - eps
		down := loss()
		data[idx] = orig
		assert.InDelta(t, (up-down)/(2*eps), grad[idx], 1e-6, "index %d", idx)
	}
	for i := 0; i < 20; i++ {
		check(in.Data(), dIn.Data(), r.IntN(len(in.Data())))
		check(w.Data(), dW.Data(), r.IntN(len(w.Data())))
	}
}

func TestBackward_Accumulates(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	m, n := cloud(t, r, 10, 30)
	rb, err := m.SubmanifoldRuleBook(tensor.Shape{10, 10}, tensor.Shape{3, 3})
	require.NoError(t, err)

	in := matrix[float64](t, n, 2)
	w := weight[float64](t, 9, 2, 3)
	dOut := matrix[float64](t, n, 3)
	randomFill(r, in.Data())
	randomFill(r, w.Data())
	randomFill(r, dOut.Data())

	once := weight[float64](t, 9, 2, 3)
	require.NoError(t, BackwardWeight(eager(), rb, in, dOut, once))
	twice := weight[float64](t, 9, 2, 3)
	require.NoError(t, BackwardWeight(eager(), rb, in, dOut, twice))
	require.NoError(t, BackwardWeight(eager(), rb, in, dOut, twice))

	for i, v := range once.Data() {
		assert.InDelta(t, 2*v, twice.Data()[i], 1e-12)
	}

	// The split calls agree with the combined one.
	dIn := matrix[float64](t, n, 2)
	require.NoError(t, BackwardInput(eager(), rb, dOut, w, dIn))
	dIn2 := matrix[float64](t, n, 2)
	dW2 := weight[float64](t, 9, 2, 3)
	require.NoError(t, Backward(eager(), rb, in, dOut, w, dIn2, dW2))
	assert.Equal(t, dIn.Data(), dIn2.Data())
	assert.Equal(t, once.Data(), dW2.Data())
}

func TestBackward_Errors(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 10))
	m, n := cloud(t, r, 8, 10)
	rb, err := m.SubmanifoldRuleBook(tensor.Shape{8, 8}, tensor.Shape{3, 3})
	require.NoError(t, err)
	w := weight[float32](t, 9, 2, 2)
	dOut := matrix[float32](t, n, 2)

	assert.ErrorIs(t, BackwardInput(eager(), rb, dOut, w, nil), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, BackwardWeight(eager(), rb, matrix[float32](t, n, 2), dOut, nil), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, Backward(eager(), rb, nil, dOut, w, nil, weight[float32](t, 9, 2, 2)), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, BackwardInput(eager(), rb, dOut, w, matrix[float32](t, n, 3)), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, BackwardInput(eager(), rb, dOut, w, matrix[float32](t, n-1, 2)), metadata.ErrUnregisteredCoordinate)
	assert.NoError(t, Backward(eager(), rb, nil, dOut, w, nil, nil))
}

// TestFullConvolution_IsAdjointOfConvolution checks that a full convolution
// with transposed weights computes the input gradient of the matching
// strided convolution when both share site order.
func TestFullConvolution_IsAdjointOfConvolution(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	fine := tensor.Shape{6, 6}
	filter, stride := tensor.Shape{2, 2}, tensor.Shape{2, 2}
	m, n := cloud(t, r, 6, 20)

	coarse := metadata.ConvolutionOutputSize(fine, filter, stride)
	conv, err := m.ConvolutionRuleBook(fine, coarse, filter, stride)
	require.NoError(t, err)
	nCoarse := m.ActiveCount(coarse)

	up, err := metadata.New(2)
	require.NoError(t, err)
	down, err := metadata.New(2)
	require.NoError(t, err)
	_, err = up.SetInputSpatialLocations(coarse, m.Coordinates(coarse))
	require.NoError(t, err)
	_, err = down.SetInputSpatialLocations(fine, m.Coordinates(fine))
	require.NoError(t, err)
	require.Equal(t, fine, metadata.FullConvolutionOutputSize(coarse, filter, stride))
	full, err := up.FullConvolutionRuleBook(coarse, fine, filter, stride, down)
	require.NoError(t, err)
	// The full convolution also activates every unvisited child site; those
	// rows come after the pre-populated ones.
	nFull := down.ActiveCount(fine)
	require.GreaterOrEqual(t, nFull, n)

	w := weight[float64](t, 4, 3, 5)
	dOut := matrix[float64](t, nCoarse, 5)
	randomFill(r, w.Data())
	randomFill(r, dOut.Data())

	dIn := matrix[float64](t, n, 3)
	require.NoError(t, BackwardInput(eager(), conv, dOut, w, dIn))

	out := matrix[float64](t, nFull, 3)
	_, err = Forward(eager(), full, dOut, w.Transposed(), out)
	require.NoError(t, err)

	assert.InDeltaSlice(t, dIn.Data(), out.Data()[:n*3], 1e-12)
}

func TestPropagation_WorkerCountDeterminism(t *testing.T) {
	r := rand.New(rand.NewPCG(13, 14))
	m, n := cloud(t, r, 32, 400)
	size := tensor.Shape{32, 32}
	rb, err := m.SubmanifoldRuleBook(size, tensor.Shape{3, 3})
	require.NoError(t, err)

	in := matrix[float32](t, n, 8)
	w := weight[float32](t, 9, 8, 8)
	dOut := matrix[float32](t, n, 8)
	randomFill(r, in.Data())
	randomFill(r, w.Data())
	randomFill(r, dOut.Data())

	run := func(e *Engine) ([]float32, []float32, []float32) {
		out := matrix[float32](t, n, 8)
		_, err := Forward(e, rb, in, w, out)
		require.NoError(t, err)
		dIn := matrix[float32](t, n, 8)
		dW := weight[float32](t, 9, 8, 8)
		require.NoError(t, Backward(e, rb, in, dOut, w, dIn, dW))
		return out.Data(), dIn.Data(), dW.Data()
	}

	out1, dIn1, dW1 := run(sequential())
	for range 3 {
		out2, dIn2, dW2 := run(eager())
		assert.Equal(t, out1, out2)
		assert.Equal(t, dIn1, dIn2)
		assert.Equal(t, dW1, dW2)
	}
}

func TestBias(t *testing.T) {
	out, err := tensor.MatrixFrom(3, 2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.NoError(t, ApplyBias(eager(), out, []float64{10, 20}))
	assert.Equal(t, []float64{11, 22, 13, 24, 15, 26}, out.Data())

	require.NoError(t, FillBias(eager(), out, []float64{-1, 1}))
	assert.Equal(t, []float64{-1, 1, -1, 1, -1, 1}, out.Data())

	assert.ErrorIs(t, ApplyBias(eager(), out, []float64{1}), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, FillBias(eager(), out, []float64{1, 2, 3}), tensor.ErrShapeMismatch)
}

func TestAccumulateBiasGrad(t *testing.T) {
	const rows = 1000
	dOut := matrix[float32](t, rows, 3)
	for r := 0; r < rows; r++ {
		copy(dOut.Row(r), []float32{0.5, -2, 3})
	}
	dBias := []float32{1, 1, 1}
	require.NoError(t, AccumulateBiasGrad(eager(), dOut, dBias))
	assert.Equal(t, []float32{1 + rows*0.5, 1 - rows*2, 1 + rows*3}, dBias)

	empty := []float32{7, 7, 7}
	require.NoError(t, AccumulateBiasGrad(eager(), matrix[float32](t, 0, 3), empty))
	assert.Equal(t, []float32{7, 7, 7}, empty)

	assert.ErrorIs(t, AccumulateBiasGrad(eager(), dOut, []float32{0}), tensor.ErrShapeMismatch)
}

func TestGemm_Transposes(t *testing.T) {
	// A = [[1 2 3] [4 5 6]], B = [[1 0] [0 1] [1 1]]
	a := []float64{1, 2, 3, 4, 5, 6}
	b := []float64{1, 0, 0, 1, 1, 1}
	c := make([]float64, 4)
	gemm(false, false, 2, 2, 3, a, 3, b, 2, 0, c, 2)
	assert.Equal(t, []float64{4, 5, 10, 11}, c)

	// Aᵀ stored as 3x2, Bᵀ stored as 2x3.
	at := []float64{1, 4, 2, 5, 3, 6}
	bt := []float64{1, 0, 1, 0, 1, 1}
	c2 := []float64{1, 1, 1, 1}
	gemm(true, true, 2, 2, 3, at, 2, bt, 3, 1, c2, 2)
	assert.Equal(t, []float64{5, 6, 11, 12}, c2)

	gemm(false, false, 0, 2, 3, []float32{}, 3, []float32{1, 2, 3, 4, 5, 6}, 2, 0, []float32{}, 2)
}

func BenchmarkForward_Submanifold(b *testing.B) {
	r := rand.New(rand.NewPCG(1, 1))
	m, err := metadata.New(3)
	require.NoError(b, err)
	size := tensor.Shape{64, 64, 64}
	locs := make([]metadata.Location, 20000)
	for i := range locs {
		locs[i] = metadata.Location{Coord: tensor.Point{r.Int32N(64), r.Int32N(64), r.Int32N(64)}}
	}
	_, err = m.SetInputSpatialLocations(size, locs)
	require.NoError(b, err)
	n := m.ActiveCount(size)
	rb, err := m.SubmanifoldRuleBook(size, tensor.Shape{3, 3, 3})
	require.NoError(b, err)

	in, _ := tensor.NewMatrix[float32](n, 32)
	w, _ := tensor.NewWeight[float32](27, 32, 32)
	randomFill(r, in.Data())
	randomFill(r, w.Data())
	out, _ := tensor.NewMatrix[float32](n, 32)
	e := Default()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out.Zero()
		if _, err := Forward(e, rb, in, w, out); err != nil {
			b.Fatal(err)
		}
	}
}
