package kernel

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/sparseconv/internal/tensor"
)

func transpose(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// gemm computes C = op(A)·op(B) + beta·C for row-major buffers.
//
// op(A) is m×k, op(B) is k×n and C is m×n. A is stored m×k (k×m when
// transA) with row stride lda; B is stored k×n (n×k when transB) with row
// stride ldb.
func gemm[T tensor.Float](transA, transB bool, m, n, k int, a []T, lda int, b []T, ldb int, beta T, c []T, ldc int) {
	if m == 0 || n == 0 {
		return
	}
	aRows, aCols := m, k
	if transA {
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if transB {
		bRows, bCols = n, k
	}

	switch a := any(a).(type) {
	case []float32:
		blas32.Gemm(transpose(transA), transpose(transB), 1,
			blas32.General{Rows: aRows, Cols: aCols, Stride: lda, Data: a},
			blas32.General{Rows: bRows, Cols: bCols, Stride: ldb, Data: any(b).([]float32)},
			float32(beta),
			blas32.General{Rows: m, Cols: n, Stride: ldc, Data: any(c).([]float32)})
	case []float64:
		blas64.Gemm(transpose(transA), transpose(transB), 1,
			blas64.General{Rows: aRows, Cols: aCols, Stride: lda, Data: a},
			blas64.General{Rows: bRows, Cols: bCols, Stride: ldb, Data: any(b).([]float64)},
			float64(beta),
			blas64.General{Rows: m, Cols: n, Stride: ldc, Data: any(c).([]float64)})
	}
}
