package nn

import (
	"fmt"

	"github.com/born-ml/sparseconv/internal/metadata"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// SparseTensor is a feature matrix together with the Metadata and spatial
// size whose active sites index its rows.
type SparseTensor[T tensor.Float] struct {
	Features    *tensor.Matrix[T]
	Metadata    *metadata.Metadata
	SpatialSize tensor.Shape
}

// NewSparseTensor registers locations at size in m and returns a tensor
// with one row per active site. Row i of features belongs to locations[i];
// features of duplicate locations are summed. Sites registered earlier
// without a matching location keep zero features.
func NewSparseTensor[T tensor.Float](m *metadata.Metadata, size tensor.Shape, locations []metadata.Location, features *tensor.Matrix[T]) (*SparseTensor[T], error) {
	if err := tensor.CheckExtent("sparse tensor", "feature rows", features.Rows(), len(locations)); err != nil {
		return nil, err
	}
	rows, err := m.SetInputSpatialLocations(size, locations)
	if err != nil {
		return nil, err
	}
	merged, err := tensor.NewMatrix[T](m.ActiveCount(size), features.Cols())
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		dst := merged.Row(r)
		for c, v := range features.Row(i) {
			dst[c] += v
		}
	}
	return &SparseTensor[T]{Features: merged, Metadata: m, SpatialSize: size.Clone()}, nil
}

// ActiveCount returns the number of feature rows.
func (s *SparseTensor[T]) ActiveCount() int {
	return s.Features.Rows()
}

// Channels returns the number of feature columns.
func (s *SparseTensor[T]) Channels() int {
	return s.Features.Cols()
}

// String returns a short description of the tensor.
func (s *SparseTensor[T]) String() string {
	return fmt.Sprintf("SparseTensor(%s, sites=%d, channels=%d, %s)",
		s.SpatialSize, s.ActiveCount(), s.Channels(), s.Features.DType())
}
