package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Sequential())

	assert.Equal(t, int64(100), counter)
}

func TestFor_SmallChunk(t *testing.T) {
	// Small work units fall back to sequential.
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_DisjointWrites(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}
	out := make([]int, 257)

	For(len(out), func(i int) {
		out[i] = i * 2
	}, cfg)

	for i, v := range out {
		require.Equal(t, i*2, v, "index %d", i)
	}
}

func TestBuckets_VisitsEveryBucket(t *testing.T) {
	for _, cfg := range []Config{Sequential(), {Enabled: true, NumWorkers: 3, MinChunkSize: 1}} {
		seen := make([]int32, 50)
		err := Buckets(len(seen), func(b int) error {
			atomic.AddInt32(&seen[b], 1)
			return nil
		}, cfg)
		require.NoError(t, err)
		for b, n := range seen {
			assert.Equal(t, int32(1), n, "bucket %d", b)
		}
	}
}

func TestBuckets_ReturnsError(t *testing.T) {
	boom := errors.New("boom")
	for _, cfg := range []Config{Sequential(), {Enabled: true, NumWorkers: 2, MinChunkSize: 1}} {
		err := Buckets(10, func(b int) error {
			if b == 7 {
				return boom
			}
			return nil
		}, cfg)
		assert.ErrorIs(t, err, boom)
	}
}

func TestBuckets_Empty(t *testing.T) {
	called := false
	err := Buckets(0, func(int) error {
		called = true
		return nil
	}, DefaultConfig())
	require.NoError(t, err)
	assert.False(t, called)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfgSeq)
		}
	})
}
