package metadata

import (
	"math/rand/v2"
	"sync"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// JitterSampler draws the window alignment of a randomized-stride rule
// book. Sample must return one offset per dimension with
// 0 <= offset[d] < stride[d].
type JitterSampler interface {
	Sample(stride tensor.Shape) []int
}

// UniformJitter draws every dimension independently and uniformly from
// [0, stride).
type UniformJitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformJitter returns a sampler seeded with seed.
func NewUniformJitter(seed uint64) *UniformJitter {
	return &UniformJitter{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sample implements JitterSampler.
func (u *UniformJitter) Sample(stride tensor.Shape) []int {
	u.mu.Lock()
	defer u.mu.Unlock()
	j := make([]int, len(stride))
	for d, s := range stride {
		j[d] = u.rng.IntN(s)
	}
	return j
}

// FixedJitter always returns the same offsets, clamped to stride-1.
type FixedJitter []int

// Sample implements JitterSampler.
func (f FixedJitter) Sample(stride tensor.Shape) []int {
	j := make([]int, len(stride))
	for d, s := range stride {
		if d < len(f) {
			j[d] = min(max(f[d], 0), s-1)
		}
	}
	return j
}

// NoJitter aligns every window at its origin, which makes a
// randomized-stride convolution identical to a plain one.
type NoJitter struct{}

// Sample implements JitterSampler.
func (NoJitter) Sample(stride tensor.Shape) []int {
	return make([]int, len(stride))
}
