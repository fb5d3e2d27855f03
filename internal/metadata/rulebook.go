package metadata

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// Kind selects the rule-book construction.
type Kind int

// Supported rule-book kinds.
const (
	Convolution Kind = iota
	Submanifold
	PermutohedralSubmanifold
	FullConvolution
	RandomizedStride
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Convolution:
		return "Convolution"
	case Submanifold:
		return "SubmanifoldConvolution"
	case PermutohedralSubmanifold:
		return "PermutohedralSubmanifoldConvolution"
	case FullConvolution:
		return "FullConvolution"
	case RandomizedStride:
		return "RandomizedStrideConvolution"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Pair associates an input row with an output row.
type Pair struct {
	In  int32
	Out int32
}

// RuleBook lists, for every kernel offset, the (input row, output row)
// pairs that contribute under that offset. Immutable after construction
// and safe for concurrent readers.
type RuleBook struct {
	kind    Kind
	buckets [][]Pair
	jitter  []int
}

func newRuleBook(kind Kind, volume int) *RuleBook {
	return &RuleBook{kind: kind, buckets: make([][]Pair, volume)}
}

// Kind returns the construction that produced the rule book.
func (rb *RuleBook) Kind() Kind { return rb.kind }

// Volume returns the number of kernel offsets.
func (rb *RuleBook) Volume() int { return len(rb.buckets) }

// Bucket returns the pairs of kernel offset k. The slice must not be modified.
func (rb *RuleBook) Bucket(k int) []Pair { return rb.buckets[k] }

// Jitter returns the window alignment offsets used by a randomized-stride
// rule book, nil for every other kind.
func (rb *RuleBook) Jitter() []int { return rb.jitter }

// NumPairs returns the total number of pairs over all offsets.
func (rb *RuleBook) NumPairs() int {
	n := 0
	for _, b := range rb.buckets {
		n += len(b)
	}
	return n
}

// Empty reports whether no pair exists.
func (rb *RuleBook) Empty() bool { return rb.NumPairs() == 0 }

// NonEmpty returns the kernel offsets that have at least one pair, in order.
func (rb *RuleBook) NonEmpty() []int {
	var ks []int
	for k, b := range rb.buckets {
		if len(b) > 0 {
			ks = append(ks, k)
		}
	}
	return ks
}

// Cost returns the number of multiply-adds a propagation pass performs
// with nIn input and nOut output channels.
func (rb *RuleBook) Cost(nIn, nOut int) int64 {
	return int64(rb.NumPairs()) * int64(nIn) * int64(nOut)
}

// Request describes a rule-book build.
type Request struct {
	Kind         Kind
	InputSize    tensor.Shape
	OutputSize   tensor.Shape
	FilterSize   tensor.Shape
	FilterStride tensor.Shape
	// Output is the output-resolution index of a FullConvolution build.
	Output *Metadata
}
