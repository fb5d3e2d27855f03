package metadata

import "github.com/born-ml/sparseconv/internal/tensor"

// Kernel offsets are flattened row-major: offset (k0, ..., kd-1) of a
// filter of size (f0, ..., fd-1) is bucket ((k0*f1 + k1)*f2 + k2)...
// matching the [volume × in × out] weight layout.

// stridedRules builds the rules of a strided convolution: input site x
// feeds output site o through offset k when x = o*stride + jitter + k with
// 0 <= k < filter. With create set, output sites are registered in
// discovery order; otherwise only already active output sites are used.
func stridedRules(kind Kind, in, out *grid, filter, stride tensor.Shape, jitter []int, create bool) *RuleBook {
	// Inserting into the grid being scanned would extend the scan.
	if create && in == out {
		panic("metadata: strided rules cannot add sites to their input grid")
	}
	dim := len(filter)
	if jitter == nil {
		jitter = make([]int, dim)
	}
	rb := newRuleBook(kind, filter.Volume())
	if kind == RandomizedStride {
		rb.jitter = append([]int(nil), jitter...)
	}

	lo := make([]int, dim)
	hi := make([]int, dim)
	o := make([]int32, dim)
	for r := 0; r < in.activeCount(); r++ {
		s := in.site(r)
		ex, x := s[0], s[1:]

		empty := false
		for d := 0; d < dim; d++ {
			a := int(x[d]) - jitter[d]
			lo[d] = max(ceilDiv(a-filter[d]+1, stride[d]), 0)
			hi[d] = min(floorDiv(a, stride[d]), out.size[d]-1)
			if lo[d] > hi[d] {
				empty = true
				break
			}
		}
		if empty {
			continue
		}

		for d := range o {
			o[d] = int32(lo[d])
		}
		for {
			var row int32
			ok := true
			if create {
				row, _ = out.insert(ex, o)
			} else {
				row, ok = out.lookup(ex, o)
			}
			if ok {
				k := 0
				for d := 0; d < dim; d++ {
					k = k*filter[d] + int(x[d]) - jitter[d] - int(o[d])*stride[d]
				}
				rb.buckets[k] = append(rb.buckets[k], Pair{In: int32(r), Out: row})
			}
			if !advance(o, lo, hi) {
				break
			}
		}
	}
	return rb
}

// neighbourRules builds the rules of a convolution whose output sites are
// its input sites: output site x reads input site x + offsets[k] through
// bucket k whenever that neighbour is active in the same example.
func neighbourRules(kind Kind, g *grid, offsets [][]int) *RuleBook {
	dim := len(g.size)
	rb := newRuleBook(kind, len(offsets))
	y := make([]int32, dim)
	for r := 0; r < g.activeCount(); r++ {
		s := g.site(r)
		ex, x := s[0], s[1:]
		for k, off := range offsets {
			inside := true
			for d := 0; d < dim; d++ {
				c := int(x[d]) + off[d]
				if c < 0 || c >= g.size[d] {
					inside = false
					break
				}
				y[d] = int32(c)
			}
			if !inside {
				continue
			}
			if in, ok := g.lookup(ex, y); ok {
				rb.buckets[k] = append(rb.buckets[k], Pair{In: in, Out: int32(r)})
			}
		}
	}
	return rb
}

// fullRules builds the rules of a full (transposed) convolution: input site
// x feeds output site x*stride + k for every offset k inside the output
// size. Output sites are registered as they are discovered.
func fullRules(in, out *grid, filter, stride tensor.Shape) *RuleBook {
	dim := len(filter)
	volume := filter.Volume()
	rb := newRuleBook(FullConvolution, volume)
	o := make([]int32, dim)
	for r := 0; r < in.activeCount(); r++ {
		s := in.site(r)
		ex, x := s[0], s[1:]
		for k := 0; k < volume; k++ {
			rem := k
			inside := true
			for d := dim - 1; d >= 0; d-- {
				c := int(x[d])*stride[d] + rem%filter[d]
				rem /= filter[d]
				if c >= out.size[d] {
					inside = false
				}
				o[d] = int32(c)
			}
			if !inside {
				continue
			}
			row, _ := out.insert(ex, o)
			rb.buckets[k] = append(rb.buckets[k], Pair{In: int32(r), Out: row})
		}
	}
	return rb
}

// submanifoldOffsets returns the displacements of a centred filter
// footprint in flattened offset order.
func submanifoldOffsets(filter tensor.Shape) [][]int {
	dim := len(filter)
	volume := filter.Volume()
	offsets := make([][]int, volume)
	for k := 0; k < volume; k++ {
		off := make([]int, dim)
		rem := k
		for d := dim - 1; d >= 0; d-- {
			off[d] = rem%filter[d] - (filter[d]-1)/2
			rem /= filter[d]
		}
		offsets[k] = off
	}
	return offsets
}

// permutohedralOffsets returns the neighbourhood of the A*_d lattice
// expressed in integer coordinates: the centre, ±e_i, and e_i - e_j for
// i != j. There are d*d + d + 1 of them.
func permutohedralOffsets(dim int) [][]int {
	offsets := make([][]int, 0, dim*dim+dim+1)
	offsets = append(offsets, make([]int, dim))
	for i := 0; i < dim; i++ {
		plus := make([]int, dim)
		plus[i] = 1
		minus := make([]int, dim)
		minus[i] = -1
		offsets = append(offsets, plus, minus)
	}
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			if i == j {
				continue
			}
			off := make([]int, dim)
			off[i] = 1
			off[j] = -1
			offsets = append(offsets, off)
		}
	}
	return offsets
}

// PermutohedralVolume returns the kernel volume of a permutohedral
// submanifold convolution in dim dimensions.
func PermutohedralVolume(dim int) int {
	return dim*dim + dim + 1
}

// advance steps o through the box [lo, hi] in row-major order and reports
// whether a new position was produced.
func advance(o []int32, lo, hi []int) bool {
	for d := len(o) - 1; d >= 0; d-- {
		if int(o[d]) < hi[d] {
			o[d]++
			return true
		}
		o[d] = int32(lo[d])
	}
	return false
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return -floorDiv(-a, b)
}

// ConvolutionOutputSize returns the output size of a strided convolution:
// (in - filter) / stride + 1 per dimension.
func ConvolutionOutputSize(in, filter, stride tensor.Shape) tensor.Shape {
	out := make(tensor.Shape, len(in))
	for d := range in {
		out[d] = (in[d]-filter[d])/stride[d] + 1
	}
	return out
}

// FullConvolutionOutputSize returns the output size of a full convolution:
// (in - 1) * stride + filter per dimension.
func FullConvolutionOutputSize(in, filter, stride tensor.Shape) tensor.Shape {
	out := make(tensor.Shape, len(in))
	for d := range in {
		out[d] = (in[d]-1)*stride[d] + filter[d]
	}
	return out
}
