// Package main provides scnbench, a benchmark driver for the sparse
// convolution core. It builds a random point cloud, runs every convolution
// kind forward and backward and prints rule-book and cost diagnostics.
package main

import (
	"flag"
	"fmt"
	stdlog "log"
	"os"

	"github.com/go-logr/stdr"

	"github.com/born-ml/sparseconv/internal/config"
)

const version = "v0.1.0-dev"

type options struct {
	configPath string
	dimension  int
	size       int
	points     int
	examples   int
	channels   int
	seed       uint64
	steps      int
	double     bool
	verbosity  int
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("scnbench %s\n", version)
		return
	}

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flag.IntVar(&opts.dimension, "dim", 3, "spatial dimensions")
	flag.IntVar(&opts.size, "size", 64, "grid extent per dimension")
	flag.IntVar(&opts.points, "points", 20000, "random sites per example")
	flag.IntVar(&opts.examples, "examples", 2, "examples in the batch")
	flag.IntVar(&opts.channels, "channels", 16, "feature channels")
	flag.Uint64Var(&opts.seed, "seed", 1, "random seed for the cloud and weights")
	flag.IntVar(&opts.steps, "steps", 3, "SGD training steps over the whole model")
	flag.BoolVar(&opts.double, "float64", false, "use float64 buffers")
	flag.IntVar(&opts.verbosity, "v", -1, "log verbosity (overrides the config file)")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "scnbench: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	if opts.verbosity >= 0 {
		cfg.LogVerbosity = opts.verbosity
	}
	if opts.dimension < 1 || opts.size < 4 || opts.points < 1 || opts.examples < 1 || opts.channels < 1 || opts.steps < 0 {
		return fmt.Errorf("invalid cloud parameters: dim=%d size=%d points=%d examples=%d channels=%d",
			opts.dimension, opts.size, opts.points, opts.examples, opts.channels)
	}

	stdr.SetVerbosity(cfg.LogVerbosity)
	log := stdr.New(stdlog.New(os.Stderr, "", stdlog.LstdFlags)).WithName("scnbench")
	log.V(1).Info("configuration", "workers", cfg.Parallel().NumWorkers, "cache", cfg.Cache.Capacity, "jitter", cfg.Jitter.Mode)

	if opts.double {
		return bench[float64](os.Stdout, cfg, opts, log)
	}
	return bench[float32](os.Stdout, cfg, opts, log)
}
