// Package parallel provides the worker fan-out used by the propagation engine.
package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum rows per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Sequential returns a config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// workers clamps NumWorkers to at least one.
func (c Config) workers() int {
	if c.NumWorkers < 1 {
		return 1
	}
	return c.NumWorkers
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
// Callers must guarantee that f(i) and f(j) never write the same memory.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.workers() == 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.workers()-1)/cfg.workers(), cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Buckets runs f(b) for every bucket b in [0, n) on at most NumWorkers
// goroutines and returns the first error. Buckets are independent units of
// work; each must write only to memory it owns.
func Buckets(n int, f func(b int) error, cfg Config) error {
	if !cfg.Enabled || n < 2 || cfg.workers() == 1 {
		for b := 0; b < n; b++ {
			if err := f(b); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(cfg.workers())
	for b := 0; b < n; b++ {
		g.Go(func() error {
			return f(b)
		})
	}
	return g.Wait()
}
