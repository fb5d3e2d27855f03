package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/tensor"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, metadata.DefaultCacheCapacity, cfg.Cache.Capacity)
	assert.Equal(t, JitterUniform, cfg.Jitter.Mode)
	assert.Positive(t, cfg.Parallel().NumWorkers)
}

func TestParse_Overlay(t *testing.T) {
	cfg, err := Parse([]byte(`
workers:
  enabled: true
  count: 3
cache:
  capacity: 4
jitter:
  mode: fixed
  offset: [1, 0]
log_verbosity: 2
`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers.Count)
	assert.Equal(t, DefaultConfig().Workers.MinChunkSize, cfg.Workers.MinChunkSize, "unset fields keep defaults")
	assert.Equal(t, 4, cfg.Cache.Capacity)
	assert.Equal(t, 2, cfg.LogVerbosity)

	p := cfg.Parallel()
	assert.True(t, p.Enabled)
	assert.Equal(t, 3, p.NumWorkers)

	assert.Equal(t, []int{1, 0}, cfg.Sampler().Sample(tensor.Shape{2, 2}))
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"negative workers", "workers: {count: -1}", "workers.count"},
		{"zero chunk", "workers: {min_chunk_size: 0}", "workers.min_chunk_size"},
		{"zero cache", "cache: {capacity: 0}", "cache.capacity"},
		{"bad mode", "jitter: {mode: gaussian}", "jitter.mode"},
		{"fixed without offset", "jitter: {mode: fixed}", "jitter.offset"},
		{"negative offset", "jitter: {mode: fixed, offset: [-1]}", "jitter.offset"},
		{"negative verbosity", "log_verbosity: -1", "log_verbosity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, err := Parse([]byte("unknown_key: 1"))
	assert.Error(t, err)
	_, err = Parse([]byte("workers: [1, 2"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jitter:\n  mode: none\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, metadata.NoJitter{}, cfg.Sampler())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_MetadataOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Capacity = 1
	cfg.Jitter = Jitter{Mode: JitterUniform, Seed: 9}

	m, err := metadata.New(1, cfg.MetadataOptions(logr.Discard())...)
	require.NoError(t, err)
	_, err = m.SetInputSpatialLocations(tensor.Shape{8}, []metadata.Location{{Coord: tensor.Point{3}}})
	require.NoError(t, err)

	_, err = m.SubmanifoldRuleBook(tensor.Shape{8}, tensor.Shape{3})
	require.NoError(t, err)
	_, err = m.SubmanifoldRuleBook(tensor.Shape{8}, tensor.Shape{1})
	require.NoError(t, err)
	assert.Equal(t, 1, m.CachedRuleBooks(), "capacity applies per kind")

	e := cfg.Engine(logr.Discard())
	assert.Equal(t, cfg.Parallel(), e.Config())
}
