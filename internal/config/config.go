// Package config loads the runtime configuration of the sparse convolution
// core from YAML: worker fan-out, rule-book cache capacity, randomized
// stride jitter sampling and log verbosity.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/sparseconv/internal/kernel"
	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/parallel"
)

// Jitter sampling modes.
const (
	JitterUniform = "uniform"
	JitterFixed   = "fixed"
	JitterNone    = "none"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError provides detailed information about a rejected field.
type ValidationError struct {
	Field   string // YAML path of the field (e.g., "workers.count")
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Details)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Workers controls the goroutine fan-out of propagation calls.
type Workers struct {
	Enabled      bool `yaml:"enabled"`
	Count        int  `yaml:"count"`          // 0 means runtime.NumCPU()
	MinChunkSize int  `yaml:"min_chunk_size"` // rows per goroutine
}

// Cache controls the rule-book cache of every Metadata.
type Cache struct {
	Capacity int `yaml:"capacity"` // rule books kept per kind
}

// Jitter controls the window alignment of randomized-stride convolutions.
type Jitter struct {
	Mode   string `yaml:"mode"`   // uniform, fixed or none
	Seed   uint64 `yaml:"seed"`   // uniform only; 0 draws a seed at startup
	Offset []int  `yaml:"offset"` // fixed only; one entry per dimension
}

// Config is the root configuration document.
//
// Example:
//
//	workers:
//	  enabled: true
//	  count: 8
//	  min_chunk_size: 64
//	cache:
//	  capacity: 32
//	jitter:
//	  mode: uniform
//	  seed: 42
//	log_verbosity: 1
type Config struct {
	Workers      Workers `yaml:"workers"`
	Cache        Cache   `yaml:"cache"`
	Jitter       Jitter  `yaml:"jitter"`
	LogVerbosity int     `yaml:"log_verbosity"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	p := parallel.DefaultConfig()
	return Config{
		Workers: Workers{
			Enabled:      p.Enabled,
			Count:        0,
			MinChunkSize: p.MinChunkSize,
		},
		Cache:  Cache{Capacity: metadata.DefaultCacheCapacity},
		Jitter: Jitter{Mode: JitterUniform},
	}
}

// Load reads the YAML file at path over DefaultConfig and validates the
// result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig and validates the result. Unknown
// fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if c.Workers.Count < 0 {
		return &ValidationError{Field: "workers.count", Details: fmt.Sprintf("must be >= 0, got %d", c.Workers.Count)}
	}
	if c.Workers.MinChunkSize < 1 {
		return &ValidationError{Field: "workers.min_chunk_size", Details: fmt.Sprintf("must be >= 1, got %d", c.Workers.MinChunkSize)}
	}
	if c.Cache.Capacity < 1 {
		return &ValidationError{Field: "cache.capacity", Details: fmt.Sprintf("must be >= 1, got %d", c.Cache.Capacity)}
	}
	if c.LogVerbosity < 0 {
		return &ValidationError{Field: "log_verbosity", Details: fmt.Sprintf("must be >= 0, got %d", c.LogVerbosity)}
	}
	switch c.Jitter.Mode {
	case JitterUniform, JitterNone:
	case JitterFixed:
		if len(c.Jitter.Offset) == 0 {
			return &ValidationError{Field: "jitter.offset", Details: "required in fixed mode"}
		}
		for i, o := range c.Jitter.Offset {
			if o < 0 {
				return &ValidationError{Field: "jitter.offset", Details: fmt.Sprintf("entry %d is negative: %d", i, o)}
			}
		}
	default:
		return &ValidationError{Field: "jitter.mode", Details: fmt.Sprintf("unknown mode %q", c.Jitter.Mode)}
	}
	return nil
}

// Parallel returns the worker configuration of the propagation engine.
func (c Config) Parallel() parallel.Config {
	n := c.Workers.Count
	if n == 0 {
		n = runtime.NumCPU()
	}
	return parallel.Config{
		Enabled:      c.Workers.Enabled && n > 1,
		NumWorkers:   n,
		MinChunkSize: c.Workers.MinChunkSize,
	}
}

// Sampler returns the randomized-stride jitter sampler.
func (c Config) Sampler() metadata.JitterSampler {
	switch c.Jitter.Mode {
	case JitterFixed:
		return metadata.FixedJitter(append([]int(nil), c.Jitter.Offset...))
	case JitterNone:
		return metadata.NoJitter{}
	default:
		seed := c.Jitter.Seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		return metadata.NewUniformJitter(seed)
	}
}

// MetadataOptions returns the options for metadata.New. Every Metadata
// built from one Config shares a single sampler.
func (c Config) MetadataOptions(log logr.Logger) []metadata.Option {
	return []metadata.Option{
		metadata.WithLogger(log),
		metadata.WithCacheCapacity(c.Cache.Capacity),
		metadata.WithJitterSampler(c.Sampler()),
	}
}

// Engine returns a propagation engine using the worker configuration.
func (c Config) Engine(log logr.Logger) *kernel.Engine {
	return kernel.NewEngine(c.Parallel(), kernel.WithLogger(log))
}
