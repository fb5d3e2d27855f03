package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"github.com/born-ml/sparseconv/internal/config"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/nn"
	"github.com/born-ml/sparseconv/internal/optim"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// randomCloud draws opts.points sites per example inside size.
func randomCloud(r *rand.Rand, opts options) []metadata.Location {
	locs := make([]metadata.Location, 0, opts.points*opts.examples)
	for ex := 0; ex < opts.examples; ex++ {
		for i := 0; i < opts.points; i++ {
			p := make(tensor.Point, opts.dimension)
			for d := range p {
				p[d] = r.Int32N(int32(opts.size))
			}
			locs = append(locs, metadata.Location{Example: ex, Coord: p})
		}
	}
	return locs
}

func bench[T tensor.Float](w io.Writer, cfg config.Config, opts options, log logr.Logger) error {
	r := rand.New(rand.NewPCG(opts.seed, opts.seed))
	metaOpts := cfg.MetadataOptions(log.WithName("metadata"))
	m, err := metadata.New(opts.dimension, metaOpts...)
	if err != nil {
		return err
	}

	size := tensor.Filled(opts.dimension, opts.size)
	locs := randomCloud(r, opts)
	features, err := tensor.NewMatrix[T](len(locs), opts.channels)
	if err != nil {
		return err
	}
	for i := range features.Data() {
		features.Data()[i] = T(r.Float64())
	}
	x, err := nn.NewSparseTensor(m, size, locs, features)
	if err != nil {
		return err
	}

	stats := &nn.Stats{}
	layerOpts := []nn.Option{
		nn.WithEngine(cfg.Engine(log.WithName("engine"))),
		nn.WithSeed(opts.seed),
		nn.WithStats(stats),
		nn.WithMetadataOptions(metaOpts...),
	}
	dim, c := opts.dimension, opts.channels
	three, two := tensor.Filled(dim, 3), tensor.Filled(dim, 2)
	model := nn.NewSequential[T](
		nn.NewSubmanifoldConvolution[T](dim, c, c, three, true, layerOpts...),
		nn.NewPermutohedralSubmanifoldConvolution[T](dim, c, c, false, layerOpts...),
		nn.NewConvolution[T](dim, c, 2*c, two, two, true, layerOpts...),
		nn.NewRandomizedStrideConvolution[T](dim, 2*c, 2*c, two, two, false, layerOpts...),
		nn.NewFullConvolution[T](dim, 2*c, c, two, two, true, layerOpts...),
	)

	fmt.Fprintf(w, "cloud: %s, %s sites (%s requested), %s\n",
		size, humanize.Comma(int64(x.ActiveCount())), humanize.Comma(int64(len(locs))), features.DType())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "layer\tsites in\tsites out\tmultiply-adds\tforward\tbackward\tthroughput")

	cur := x
	for i := 0; i < model.Len(); i++ {
		layer := model.Module(i)
		before := stats.MultiplyAdds()

		start := time.Now()
		y, err := layer.Forward(cur)
		if err != nil {
			return fmt.Errorf("%v: %w", layer, err)
		}
		fwd := time.Since(start)
		cost := stats.MultiplyAdds() - before

		dOut, err := tensor.NewMatrix[T](y.ActiveCount(), y.Channels())
		if err != nil {
			return err
		}
		for j := range dOut.Data() {
			dOut.Data()[j] = 1
		}
		start = time.Now()
		if _, err := layer.Backward(dOut); err != nil {
			return fmt.Errorf("%v backward: %w", layer, err)
		}
		bwd := time.Since(start)

		fmt.Fprintf(tw, "%v\t%s\t%s\t%s\t%s\t%s\t%s\n",
			layer,
			humanize.Comma(int64(cur.ActiveCount())),
			humanize.Comma(int64(y.ActiveCount())),
			humanize.Comma(cost),
			fwd.Round(time.Microsecond),
			bwd.Round(time.Microsecond),
			humanize.SI(float64(cost)/max(fwd.Seconds(), 1e-9), "MAC/s"))
		cur = y
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if err := train(w, model, x, opts.steps); err != nil {
		return err
	}

	fmt.Fprintf(w, "total: %s multiply-adds, %s hidden states, %d cached rule books\n",
		humanize.Comma(stats.MultiplyAdds()), humanize.Comma(stats.HiddenStates()), m.CachedRuleBooks())
	return nil
}

// train runs SGD steps minimising half the squared norm of the model output,
// drawing new randomized-stride alignments after every step.
func train[T tensor.Float](w io.Writer, model *nn.Sequential[T], x *nn.SparseTensor[T], steps int) error {
	if steps == 0 {
		return nil
	}
	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 1e-4, Momentum: 0.9})
	start := time.Now()
	for step := 0; step < steps; step++ {
		optimizer.ZeroGrad()
		y, err := model.Forward(x)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		var loss float64
		for _, v := range y.Features.Data() {
			loss += 0.5 * float64(v) * float64(v)
		}
		if _, err := model.Backward(y.Features); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		optimizer.Step()
		x.Metadata.ResetRandomizedStride()
		fmt.Fprintf(w, "step %d: loss %.6g\n", step, loss)
	}
	fmt.Fprintf(w, "train: %d steps in %s\n", steps, time.Since(start).Round(time.Millisecond))
	return nil
}
