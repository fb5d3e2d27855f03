package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// HeNormal fills data with values drawn from N(0, 2/fanIn).
//
// For a sparse convolution fanIn = input channels * kernel volume, which
// keeps activation variance stable through ReLU networks.
//
// Parameters:
//   - r: Random source
//   - fanIn: Number of input units feeding one output
//   - data: Buffer to fill
func HeNormal[T tensor.Float](r *rand.Rand, fanIn int, data []T) {
	std := math.Sqrt(2.0 / float64(fanIn))
	for i := range data {
		data[i] = T(r.NormFloat64() * std)
	}
}

// newRand returns the default random source for weight initialisation.
func newRand() *rand.Rand {
	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
