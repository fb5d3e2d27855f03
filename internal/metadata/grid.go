package metadata

import "github.com/born-ml/sparseconv/internal/tensor"

// Location identifies an active site: the example it belongs to inside the
// batch and its grid coordinate.
type Location struct {
	Example int
	Coord   tensor.Point
}

// gridOrigin records the strided build that populated an output grid.
type gridOrigin struct {
	key    cacheKey
	jitter []int
}

// grid is the spatial index of one resolution. Rows are assigned
// contiguously in registration order and never change afterwards.
type grid struct {
	size   tensor.Shape
	table  *coordTable
	sites  []int32 // row-major keys: row r is sites[r*width : (r+1)*width]
	width  int
	key    []int32     // lookup scratch
	origin *gridOrigin // nil when sites were registered directly
}

func newGrid(size tensor.Shape) *grid {
	width := len(size) + 1
	return &grid{
		size:  size.Clone(),
		table: newCoordTable(width),
		width: width,
		key:   make([]int32, width),
	}
}

func (g *grid) activeCount() int {
	return len(g.sites) / g.width
}

// site returns the key of row r: example index followed by coordinates.
func (g *grid) site(r int) []int32 {
	return g.sites[r*g.width : (r+1)*g.width]
}

// lookup finds the row of coordinate p in example ex.
func (g *grid) lookup(ex int32, p []int32) (int32, bool) {
	g.key[0] = ex
	copy(g.key[1:], p)
	return g.table.get(g.key)
}

// insert registers coordinate p in example ex and returns its row.
func (g *grid) insert(ex int32, p []int32) (int32, bool) {
	g.key[0] = ex
	copy(g.key[1:], p)
	row, added := g.table.put(g.key, int32(g.activeCount()))
	if added {
		g.sites = append(g.sites, g.key...)
	}
	return row, added
}

func (g *grid) location(r int) Location {
	s := g.site(r)
	return Location{Example: int(s[0]), Coord: tensor.Point(s[1:]).Clone()}
}
