package tensor

import "fmt"

// Matrix is a dense row-major [rows × cols] buffer.
//
// Feature matrices hold one row per active site; sparsity lives only in
// which rows exist, never inside a row. A matrix with zero rows is valid
// and represents an empty active set.
type Matrix[T Float] struct {
	rows int
	cols int
	data []T
}

// NewMatrix allocates a zero-filled matrix.
func NewMatrix[T Float](rows, cols int) (*Matrix[T], error) {
	if rows < 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid matrix extents %dx%d", rows, cols)
	}
	return &Matrix[T]{rows: rows, cols: cols, data: make([]T, rows*cols)}, nil
}

// MatrixFrom wraps data without copying. len(data) must equal rows*cols.
func MatrixFrom[T Float](rows, cols int, data []T) (*Matrix[T], error) {
	if rows < 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid matrix extents %dx%d", rows, cols)
	}
	if err := CheckExtent("matrix", "data length", len(data), rows*cols); err != nil {
		return nil, err
	}
	return &Matrix[T]{rows: rows, cols: cols, data: data}, nil
}

// Rows returns the number of rows (active sites).
func (m *Matrix[T]) Rows() int { return m.rows }

// Cols returns the number of columns (channels).
func (m *Matrix[T]) Cols() int { return m.cols }

// Data returns the backing slice.
// WARNING: Direct access to underlying memory.
func (m *Matrix[T]) Data() []T { return m.data }

// DType returns the runtime data type tag.
func (m *Matrix[T]) DType() DataType { return DataTypeOf[T]() }

// Row returns row i as a sub-slice of the backing buffer.
func (m *Matrix[T]) Row(i int) []T {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// At returns element (i, j).
func (m *Matrix[T]) At(i, j int) T {
	return m.data[i*m.cols+j]
}

// Set stores v at (i, j).
func (m *Matrix[T]) Set(i, j int, v T) {
	m.data[i*m.cols+j] = v
}

// Zero fills the matrix with zeros.
func (m *Matrix[T]) Zero() {
	clear(m.data)
}

// Clone returns a deep copy.
func (m *Matrix[T]) Clone() *Matrix[T] {
	data := make([]T, len(m.data))
	copy(data, m.data)
	return &Matrix[T]{rows: m.rows, cols: m.cols, data: data}
}

// Weight is a convolution weight tensor [volume × in × out]: one
// [in × out] row-major slice per kernel offset.
type Weight[T Float] struct {
	volume int
	in     int
	out    int
	data   []T
}

// NewWeight allocates a zero-filled weight tensor.
func NewWeight[T Float](volume, in, out int) (*Weight[T], error) {
	if volume <= 0 || in <= 0 || out <= 0 {
		return nil, fmt.Errorf("invalid weight extents %dx%dx%d", volume, in, out)
	}
	return &Weight[T]{volume: volume, in: in, out: out, data: make([]T, volume*in*out)}, nil
}

// WeightFrom wraps data without copying. len(data) must equal volume*in*out.
func WeightFrom[T Float](volume, in, out int, data []T) (*Weight[T], error) {
	if volume <= 0 || in <= 0 || out <= 0 {
		return nil, fmt.Errorf("invalid weight extents %dx%dx%d", volume, in, out)
	}
	if err := CheckExtent("weight", "data length", len(data), volume*in*out); err != nil {
		return nil, err
	}
	return &Weight[T]{volume: volume, in: in, out: out, data: data}, nil
}

// Volume returns the number of kernel offsets.
func (w *Weight[T]) Volume() int { return w.volume }

// In returns the number of input channels.
func (w *Weight[T]) In() int { return w.in }

// Out returns the number of output channels.
func (w *Weight[T]) Out() int { return w.out }

// Data returns the backing slice.
func (w *Weight[T]) Data() []T { return w.data }

// Offset returns the [in × out] slice for kernel offset k.
func (w *Weight[T]) Offset(k int) []T {
	n := w.in * w.out
	return w.data[k*n : (k+1)*n]
}

// Zero fills the tensor with zeros.
func (w *Weight[T]) Zero() {
	clear(w.data)
}

// Transposed returns a new tensor with every offset slice transposed,
// i.e. shape [volume × out × in].
func (w *Weight[T]) Transposed() *Weight[T] {
	t := &Weight[T]{volume: w.volume, in: w.out, out: w.in, data: make([]T, len(w.data))}
	for k := 0; k < w.volume; k++ {
		src := w.Offset(k)
		dst := t.Offset(k)
		for i := 0; i < w.in; i++ {
			for j := 0; j < w.out; j++ {
				dst[j*w.in+i] = src[i*w.out+j]
			}
		}
	}
	return t
}
