// Package tensor provides the dense buffers exchanged with the sparse
// convolution core: feature matrices, weight tensors and spatial shapes.
package tensor

// Float is the constraint for feature, weight and gradient buffers.
// Only exact float32 and float64 are accepted so that buffers can be handed
// to BLAS without conversion.
type Float interface {
	float32 | float64
}

// DataType represents runtime type information for buffers.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// DataTypeOf returns the runtime tag for T.
func DataTypeOf[T Float]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	default:
		return Float64
	}
}
