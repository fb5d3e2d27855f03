// Package kernel implements the feature propagation engine of sparse
// convolutions: rule-book driven gather, GEMM and reduction for the forward
// pass, the input gradient and the weight gradient, plus the bias engine.
//
// Every kernel offset of a rule book is an independent bucket. Buckets run
// concurrently on read-only inputs and write their contribution into a
// private block; a single reduction pass then adds the blocks into the
// shared destination in bucket order, so results do not depend on the
// number of workers.
package kernel

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// Engine carries the worker configuration and logger of propagation calls.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	cfg parallel.Config
	log logr.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Per-call costs are logged at V(2).
func WithLogger(l logr.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine with the given worker configuration.
func NewEngine(cfg parallel.Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, log: logr.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Default returns an engine using parallel.DefaultConfig.
func Default() *Engine {
	return NewEngine(parallel.DefaultConfig())
}

// Config returns the worker configuration.
func (e *Engine) Config() parallel.Config { return e.cfg }

func inRow(p metadata.Pair) int  { return int(p.In) }
func outRow(p metadata.Pair) int { return int(p.Out) }

// gather copies the selected source rows of pairs into dst, one row per pair.
func gather[T tensor.Float](dst, src []T, cols int, pairs []metadata.Pair, row func(metadata.Pair) int, cfg parallel.Config) {
	parallel.For(len(pairs), func(i int) {
		r := row(pairs[i])
		copy(dst[i*cols:(i+1)*cols], src[r*cols:(r+1)*cols])
	}, cfg)
}

// scatterAdd adds row i of block into the selected destination row of pairs[i].
func scatterAdd[T tensor.Float](dst, block []T, cols int, pairs []metadata.Pair, row func(metadata.Pair) int) {
	for i, p := range pairs {
		d := dst[row(p)*cols : (row(p)+1)*cols]
		s := block[i*cols : (i+1)*cols]
		for c := range d {
			d[c] += s[c]
		}
	}
}

// checkRules verifies that every pair addresses an existing row. nIn < 0
// skips the input side.
func checkRules(op string, rb *metadata.RuleBook, nIn, nOut int) error {
	for k := 0; k < rb.Volume(); k++ {
		for _, p := range rb.Bucket(k) {
			if (nIn >= 0 && (p.In < 0 || int(p.In) >= nIn)) || p.Out < 0 || int(p.Out) >= nOut {
				return fmt.Errorf("%s: offset %d pair (%d,%d) outside %dx%d rows: %w",
					op, k, p.In, p.Out, nIn, nOut, metadata.ErrUnregisteredCoordinate)
			}
		}
	}
	return nil
}

func checkWeight[T tensor.Float](op string, rb *metadata.RuleBook, w *tensor.Weight[T]) error {
	return tensor.CheckExtent(op, "kernel volume", w.Volume(), rb.Volume())
}

// Forward adds the convolution of input by weight into output and returns
// the number of multiply-adds performed. output must already hold its
// initial value (zero or bias); rows no rule reaches keep it.
func Forward[T tensor.Float](e *Engine, rb *metadata.RuleBook, input *tensor.Matrix[T], weight *tensor.Weight[T], output *tensor.Matrix[T]) (int64, error) {
	const op = "forward"
	if err := checkWeight(op, rb, weight); err != nil {
		return 0, err
	}
	if err := tensor.CheckExtent(op, "input channels", input.Cols(), weight.In()); err != nil {
		return 0, err
	}
	if err := tensor.CheckExtent(op, "output channels", output.Cols(), weight.Out()); err != nil {
		return 0, err
	}
	if err := checkRules(op, rb, input.Rows(), output.Rows()); err != nil {
		return 0, err
	}

	ip, oc := weight.In(), weight.Out()
	ks := rb.NonEmpty()
	partials := make([][]T, len(ks))
	err := parallel.Buckets(len(ks), func(b int) error {
		k := ks[b]
		pairs := rb.Bucket(k)
		n := len(pairs)
		gin := make([]T, n*ip)
		gather(gin, input.Data(), ip, pairs, inRow, e.cfg)
		block := make([]T, n*oc)
		gemm(false, false, n, oc, ip, gin, ip, weight.Offset(k), oc, 0, block, oc)
		partials[b] = block
		return nil
	}, e.cfg)
	if err != nil {
		return 0, err
	}

	for b, k := range ks {
		scatterAdd(output.Data(), partials[b], oc, rb.Bucket(k), outRow)
	}

	cost := rb.Cost(ip, oc)
	e.log.V(2).Info("forward", "kind", rb.Kind().String(), "pairs", rb.NumPairs(), "cost", humanize.Comma(cost))
	return cost, nil
}

// Backward propagates dOutput through the rule book. When dInput is non-nil
// the input gradient is added into it; when dWeight is non-nil the weight
// gradient is added into it and input must be supplied. Both destinations
// accumulate and are never cleared here.
func Backward[T tensor.Float](e *Engine, rb *metadata.RuleBook, input, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], dInput *tensor.Matrix[T], dWeight *tensor.Weight[T]) error {
	const op = "backward"
	if err := checkWeight(op, rb, weight); err != nil {
		return err
	}
	ip, oc := weight.In(), weight.Out()
	if err := tensor.CheckExtent(op, "output gradient channels", dOutput.Cols(), oc); err != nil {
		return err
	}

	nIn := -1
	if dInput != nil {
		if err := tensor.CheckExtent(op, "input gradient channels", dInput.Cols(), ip); err != nil {
			return err
		}
		nIn = dInput.Rows()
	}
	if dWeight != nil {
		if input == nil {
			return fmt.Errorf("%s: weight gradient needs the input features: %w", op, tensor.ErrShapeMismatch)
		}
		if err := tensor.CheckExtent(op, "input channels", input.Cols(), ip); err != nil {
			return err
		}
		if nIn >= 0 {
			if err := tensor.CheckExtent(op, "input rows", input.Rows(), nIn); err != nil {
				return err
			}
		}
		nIn = input.Rows()
		if err := checkWeight(op, rb, dWeight); err != nil {
			return err
		}
		if err := tensor.CheckExtent(op, "weight gradient input channels", dWeight.In(), ip); err != nil {
			return err
		}
		if err := tensor.CheckExtent(op, "weight gradient output channels", dWeight.Out(), oc); err != nil {
			return err
		}
	}
	if dInput == nil && dWeight == nil {
		return nil
	}
	if err := checkRules(op, rb, nIn, dOutput.Rows()); err != nil {
		return err
	}

	ks := rb.NonEmpty()
	partials := make([][]T, len(ks))
	err := parallel.Buckets(len(ks), func(b int) error {
		k := ks[b]
		pairs := rb.Bucket(k)
		n := len(pairs)
		gdo := make([]T, n*oc)
		gather(gdo, dOutput.Data(), oc, pairs, outRow, e.cfg)
		if dWeight != nil {
			// Each bucket owns its own weight-gradient slice.
			gin := make([]T, n*ip)
			gather(gin, input.Data(), ip, pairs, inRow, e.cfg)
			gemm(true, false, ip, oc, n, gin, ip, gdo, oc, 1, dWeight.Offset(k), oc)
		}
		if dInput != nil {
			block := make([]T, n*ip)
			gemm(false, true, n, ip, oc, gdo, oc, weight.Offset(k), oc, 0, block, ip)
			partials[b] = block
		}
		return nil
	}, e.cfg)
	if err != nil {
		return err
	}

	if dInput != nil {
		for b, k := range ks {
			scatterAdd(dInput.Data(), partials[b], ip, rb.Bucket(k), inRow)
		}
	}
	e.log.V(2).Info("backward", "kind", rb.Kind().String(), "pairs", rb.NumPairs(),
		"cost", humanize.Comma(rb.Cost(ip, oc)))
	return nil
}

// BackwardInput adds the input gradient of dOutput into dInput.
func BackwardInput[T tensor.Float](e *Engine, rb *metadata.RuleBook, dOutput *tensor.Matrix[T], weight *tensor.Weight[T], dInput *tensor.Matrix[T]) error {
	if dInput == nil {
		return fmt.Errorf("backward input: nil gradient buffer: %w", tensor.ErrShapeMismatch)
	}
	return Backward(e, rb, nil, dOutput, weight, dInput, nil)
}

// BackwardWeight adds the weight gradient of dOutput into dWeight.
func BackwardWeight[T tensor.Float](e *Engine, rb *metadata.RuleBook, input, dOutput *tensor.Matrix[T], dWeight *tensor.Weight[T]) error {
	if dWeight == nil {
		return fmt.Errorf("backward weight: nil gradient buffer: %w", tensor.ErrShapeMismatch)
	}
	return Backward(e, rb, input, dOutput, dWeight, nil, dWeight)
}
