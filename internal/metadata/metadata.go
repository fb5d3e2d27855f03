// Package metadata implements the spatial index of sparse tensors: the
// mapping from grid coordinates to feature rows at every resolution, and
// the rule books that drive sparse convolutions between resolutions.
package metadata

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/born-ml/sparseconv/internal/tensor"
)

// Metadata owns the spatial indices of one sparse tensor lineage and the
// rule books derived from them.
//
// Every exported method is safe for concurrent use. Rule books returned by
// the Build methods are immutable and may be shared freely.
type Metadata struct {
	id        uuid.UUID
	dimension int
	log       logr.Logger

	mu       sync.Mutex
	grids    map[string]*grid
	order    []string
	capacity int
	cache    *ruleBookCache
	jitters  map[cacheKey][]int
	sampler  JitterSampler
}

// Option configures a Metadata.
type Option func(*Metadata)

// WithLogger sets the logger. Rule-book builds and releases log at V(1).
func WithLogger(l logr.Logger) Option {
	return func(m *Metadata) { m.log = l }
}

// WithCacheCapacity sets how many rule books of each kind are kept.
func WithCacheCapacity(n int) Option {
	return func(m *Metadata) { m.capacity = n }
}

// WithJitterSampler sets the sampler used by randomized-stride builds.
func WithJitterSampler(s JitterSampler) Option {
	return func(m *Metadata) { m.sampler = s }
}

// New creates an empty Metadata for the given number of spatial dimensions.
func New(dimension int, opts ...Option) (*Metadata, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("metadata: dimension must be >= 1, got %d: %w", dimension, ErrInvalidParams)
	}
	m := &Metadata{
		id:        uuid.New(),
		dimension: dimension,
		log:       logr.Discard(),
		grids:     make(map[string]*grid),
		capacity:  DefaultCacheCapacity,
		jitters:   make(map[cacheKey][]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sampler == nil {
		//nolint:gosec // Jitter only needs to differ between training steps.
		m.sampler = NewUniformJitter(rand.Uint64())
	}
	m.log = m.log.WithValues("metadata", m.id.String())
	m.cache = newRuleBookCache(m.capacity, func(k cacheKey, _ *RuleBook) {
		m.log.V(1).Info("released rule book", "kind", k.kind.String(), "input", k.input, "output", k.output)
	})
	return m, nil
}

// ID returns the unique identifier of the metadata.
func (m *Metadata) ID() uuid.UUID { return m.id }

// Dimension returns the number of spatial dimensions.
func (m *Metadata) Dimension() int { return m.dimension }

// String implements fmt.Stringer.
func (m *Metadata) String() string {
	return fmt.Sprintf("Metadata(%dD, %s)", m.dimension, m.id)
}

func (m *Metadata) checkSize(size tensor.Shape) error {
	if err := size.Validate(m.dimension); err != nil {
		return fmt.Errorf("spatial size %v: %v: %w", size, err, ErrDimensionMismatch)
	}
	return nil
}

// gridLocked returns the grid of size, creating it when create is set.
func (m *Metadata) gridLocked(size tensor.Shape, create bool) (*grid, bool) {
	key := size.Key()
	g, ok := m.grids[key]
	if ok || !create {
		return g, ok
	}
	g = newGrid(size)
	m.grids[key] = g
	m.order = append(m.order, key)
	return g, true
}

// dropGridLocked forgets the resolution key and everything derived from it.
func (m *Metadata) dropGridLocked(key string) {
	if _, ok := m.grids[key]; !ok {
		return
	}
	delete(m.grids, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.log.V(1).Info("dropped resolution", "size", key)
	m.invalidateLocked(key)
}

// invalidateLocked removes the cached rule books that read or write the
// resolution key and drops the output resolutions built from it.
func (m *Metadata) invalidateLocked(key string) {
	m.cache.removeIf(func(k cacheKey) bool { return k.input == key || k.output == key })
	var derived []string
	for _, k := range m.order {
		if o := m.grids[k].origin; k != key && o != nil && o.key.input == key {
			derived = append(derived, k)
		}
	}
	for _, k := range derived {
		m.dropGridLocked(k)
	}
}

// stridedOutputLocked returns the output grid of a strided build and
// whether the build populates it. An output grid populated by the same
// parameter tuple under another alignment is rebuilt.
func (m *Metadata) stridedOutputLocked(key cacheKey, size tensor.Shape, jitter []int) (*grid, bool) {
	out, ok := m.grids[key.output]
	if ok && out.origin != nil && out.origin.key == key && !equalInts(out.origin.jitter, jitter) {
		m.dropGridLocked(key.output)
		ok = false
	}
	if ok {
		return out, false
	}
	out, _ = m.gridLocked(size, true)
	out.origin = &gridOrigin{key: key, jitter: jitter}
	return out, true
}

// RegisterShape makes size a known resolution with no active sites unless
// it is already registered.
func (m *Metadata) RegisterShape(size tensor.Shape) error {
	if err := m.checkSize(size); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gridLocked(size, true)
	return nil
}

// SetInputSpatialLocations registers locations as active sites of size and
// returns the feature row of each location. A location that is already
// active keeps its row, so duplicates share a row. Nothing is registered
// when any location is invalid.
//
// Adding sites to a known resolution drops the rule books that use it and
// the output resolutions built from it.
func (m *Metadata) SetInputSpatialLocations(size tensor.Shape, locations []Location) ([]int, error) {
	if err := m.checkSize(size); err != nil {
		return nil, err
	}
	for i, loc := range locations {
		if loc.Example < 0 {
			return nil, fmt.Errorf("location %d: negative example index %d: %w", i, loc.Example, ErrInvalidParams)
		}
		if !loc.Coord.Within(size) {
			return nil, fmt.Errorf("location %d: %v not in %v: %w", i, loc.Coord, size, ErrCoordinateOutOfRange)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	g, _ := m.gridLocked(size, true)
	rows := make([]int, len(locations))
	grew := false
	for i, loc := range locations {
		row, added := g.insert(int32(loc.Example), loc.Coord)
		rows[i] = int(row)
		grew = grew || added
	}
	if grew {
		g.origin = nil
		m.invalidateLocked(size.Key())
	}
	return rows, nil
}

// ActiveCount returns the number of active sites of size, 0 when the size
// is not registered.
func (m *Metadata) ActiveCount(size tensor.Shape) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.grids[size.Key()]; ok {
		return g.activeCount()
	}
	return 0
}

// Registered reports whether size is a known resolution.
func (m *Metadata) Registered(size tensor.Shape) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.grids[size.Key()]
	return ok
}

// Lookup returns the feature row of loc at resolution size.
func (m *Metadata) Lookup(size tensor.Shape, loc Location) (int, bool) {
	if len(loc.Coord) != m.dimension {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grids[size.Key()]
	if !ok {
		return 0, false
	}
	row, ok := g.lookup(int32(loc.Example), loc.Coord)
	return int(row), ok
}

// Coordinates returns the active sites of size in row order.
func (m *Metadata) Coordinates(size tensor.Shape) []Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grids[size.Key()]
	if !ok {
		return nil
	}
	locs := make([]Location, g.activeCount())
	for r := range locs {
		locs[r] = g.location(r)
	}
	return locs
}

// Sizes returns the registered resolutions in registration order.
func (m *Metadata) Sizes() []tensor.Shape {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]tensor.Shape, len(m.order))
	for i, key := range m.order {
		sizes[i] = m.grids[key].size.Clone()
	}
	return sizes
}

// CachedRuleBooks returns the number of rule books currently cached.
func (m *Metadata) CachedRuleBooks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.len()
}

// ConvolutionRuleBook returns the rule book of a strided convolution from
// inputSize to outputSize.
func (m *Metadata) ConvolutionRuleBook(inputSize, outputSize, filterSize, filterStride tensor.Shape) (*RuleBook, error) {
	return m.BuildRuleBook(Request{
		Kind: Convolution, InputSize: inputSize, OutputSize: outputSize,
		FilterSize: filterSize, FilterStride: filterStride,
	})
}

// SubmanifoldRuleBook returns the rule book of a submanifold convolution
// at size.
func (m *Metadata) SubmanifoldRuleBook(size, filterSize tensor.Shape) (*RuleBook, error) {
	return m.BuildRuleBook(Request{Kind: Submanifold, InputSize: size, FilterSize: filterSize})
}

// PermutohedralSubmanifoldRuleBook returns the rule book of a
// permutohedral submanifold convolution at size.
func (m *Metadata) PermutohedralSubmanifoldRuleBook(size tensor.Shape) (*RuleBook, error) {
	return m.BuildRuleBook(Request{Kind: PermutohedralSubmanifold, InputSize: size})
}

// FullConvolutionRuleBook returns the rule book of a full (transposed)
// convolution from inputSize in m to outputSize in out. Output sites are
// registered in out as they are discovered; sites already present in out
// keep their rows.
func (m *Metadata) FullConvolutionRuleBook(inputSize, outputSize, filterSize, filterStride tensor.Shape, out *Metadata) (*RuleBook, error) {
	return m.BuildRuleBook(Request{
		Kind: FullConvolution, InputSize: inputSize, OutputSize: outputSize,
		FilterSize: filterSize, FilterStride: filterStride, Output: out,
	})
}

// RandomizedStrideRuleBook returns the rule book of a randomized-stride
// convolution. The window alignment is sampled on the first build of a
// parameter tuple and reused until ResetRandomizedStride is called, so a
// forward call and its backward call always see the same rule book.
func (m *Metadata) RandomizedStrideRuleBook(inputSize, outputSize, filterSize, filterStride tensor.Shape) (*RuleBook, error) {
	return m.BuildRuleBook(Request{
		Kind: RandomizedStride, InputSize: inputSize, OutputSize: outputSize,
		FilterSize: filterSize, FilterStride: filterStride,
	})
}

// SetRandomizedStrideJitter fixes the window alignment of a
// randomized-stride parameter tuple. A cached rule book built with a
// different alignment is dropped; the next build also rebuilds the output
// sites it created.
func (m *Metadata) SetRandomizedStrideJitter(inputSize, outputSize, filterSize, filterStride tensor.Shape, jitter []int) error {
	req, err := m.normalize(Request{
		Kind: RandomizedStride, InputSize: inputSize, OutputSize: outputSize,
		FilterSize: filterSize, FilterStride: filterStride,
	})
	if err != nil {
		return err
	}
	if len(jitter) != m.dimension {
		return fmt.Errorf("jitter has %d components, want %d: %w", len(jitter), m.dimension, ErrDimensionMismatch)
	}
	for d, j := range jitter {
		if j < 0 || j >= req.FilterStride[d] {
			return fmt.Errorf("jitter[%d]=%d outside [0,%d): %w", d, j, req.FilterStride[d], ErrInvalidParams)
		}
	}

	key := keyOf(req)
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.jitters[key]; ok && !equalInts(old, jitter) {
		m.cache.remove(key)
	}
	m.jitters[key] = append([]int(nil), jitter...)
	return nil
}

// RandomizedStrideJitter returns the stored alignment of a parameter tuple.
func (m *Metadata) RandomizedStrideJitter(inputSize, outputSize, filterSize, filterStride tensor.Shape) ([]int, bool) {
	key := keyOf(Request{
		Kind: RandomizedStride, InputSize: inputSize, OutputSize: outputSize,
		FilterSize: filterSize, FilterStride: filterStride,
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jitters[key]
	if !ok {
		return nil, false
	}
	return append([]int(nil), j...), true
}

// ResetRandomizedStride forgets every stored alignment and the rule books
// built from them. Call it at the start of a training step. Output sites
// are rebuilt on the next build when the new alignment differs.
func (m *Metadata) ResetRandomizedStride() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.jitters {
		m.cache.remove(key)
	}
	clear(m.jitters)
}

// normalize validates req and fills the fields implied by its kind.
func (m *Metadata) normalize(req Request) (Request, error) {
	if err := m.checkSize(req.InputSize); err != nil {
		return req, fmt.Errorf("%s input: %w", req.Kind, err)
	}
	switch req.Kind {
	case Submanifold:
		if err := req.FilterSize.Validate(m.dimension); err != nil {
			return req, fmt.Errorf("%s filter: %v: %w", req.Kind, err, ErrInvalidParams)
		}
		req.OutputSize = req.InputSize
		req.FilterStride = tensor.Filled(m.dimension, 1)
		req.Output = nil
	case PermutohedralSubmanifold:
		req.OutputSize = req.InputSize
		req.FilterSize = nil
		req.FilterStride = nil
		req.Output = nil
	case Convolution, RandomizedStride, FullConvolution:
		if err := m.checkSize(req.OutputSize); err != nil {
			return req, fmt.Errorf("%s output: %w", req.Kind, err)
		}
		if err := req.FilterSize.Validate(m.dimension); err != nil {
			return req, fmt.Errorf("%s filter: %v: %w", req.Kind, err, ErrInvalidParams)
		}
		if err := req.FilterStride.Validate(m.dimension); err != nil {
			return req, fmt.Errorf("%s stride: %v: %w", req.Kind, err, ErrInvalidParams)
		}
		if req.Kind != FullConvolution {
			req.Output = nil
			break
		}
		if req.Output == nil || req.Output == m {
			return req, fmt.Errorf("%s needs a distinct output metadata: %w", req.Kind, ErrInvalidParams)
		}
		if req.Output.dimension != m.dimension {
			return req, fmt.Errorf("%s output metadata is %dD, want %dD: %w",
				req.Kind, req.Output.dimension, m.dimension, ErrDimensionMismatch)
		}
	default:
		return req, fmt.Errorf("unknown rule-book kind %d: %w", int(req.Kind), ErrInvalidParams)
	}
	return req, nil
}

// lock acquires m and, for full convolutions, the output metadata in a
// global order so that opposite builds cannot deadlock.
func (m *Metadata) lock(req Request) func() {
	if req.Output == nil {
		m.mu.Lock()
		return m.mu.Unlock
	}
	first, second := m, req.Output
	if bytes.Compare(first.id[:], second.id[:]) > 0 {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// BuildRuleBook returns the rule book described by req, building and
// caching it on first use.
func (m *Metadata) BuildRuleBook(req Request) (*RuleBook, error) {
	req, err := m.normalize(req)
	if err != nil {
		return nil, err
	}
	key := keyOf(req)

	unlock := m.lock(req)
	defer unlock()

	if rb, ok := m.cache.get(key); ok {
		return rb, nil
	}
	in, ok := m.grids[req.InputSize.Key()]
	if !ok {
		return nil, fmt.Errorf("%s input %v: %w", req.Kind, req.InputSize, ErrUnknownShape)
	}

	var rb *RuleBook
	switch req.Kind {
	case Convolution, RandomizedStride:
		var jitter []int
		if req.Kind == RandomizedStride {
			if jitter, ok = m.jitters[key]; !ok {
				jitter = m.sampler.Sample(req.FilterStride)
				m.jitters[key] = jitter
			}
		}
		out, create := m.stridedOutputLocked(key, req.OutputSize, jitter)
		if in, ok = m.grids[key.input]; !ok {
			return nil, fmt.Errorf("%s input %v: %w", req.Kind, req.InputSize, ErrUnknownShape)
		}
		rb = stridedRules(req.Kind, in, out, req.FilterSize, req.FilterStride, jitter, create)
	case Submanifold:
		rb = neighbourRules(Submanifold, in, submanifoldOffsets(req.FilterSize))
	case PermutohedralSubmanifold:
		rb = neighbourRules(PermutohedralSubmanifold, in, permutohedralOffsets(m.dimension))
	case FullConvolution:
		out, _ := req.Output.gridLocked(req.OutputSize, true)
		before := out.activeCount()
		rb = fullRules(in, out, req.FilterSize, req.FilterStride)
		if out.activeCount() > before {
			out.origin = nil
			req.Output.invalidateLocked(key.output)
		}
	}

	m.cache.put(key, rb)
	m.log.V(1).Info("built rule book",
		"kind", req.Kind.String(),
		"input", req.InputSize.String(),
		"output", req.OutputSize.String(),
		"volume", rb.Volume(),
		"pairs", rb.NumPairs())
	return rb, nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
