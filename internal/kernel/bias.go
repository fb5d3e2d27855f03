package kernel

import (
	"github.com/born-ml/sparseconv/internal/parallel"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// ApplyBias adds bias to every row of output.
func ApplyBias[T tensor.Float](e *Engine, output *tensor.Matrix[T], bias []T) error {
	if err := tensor.CheckExtent("bias", "bias length", len(bias), output.Cols()); err != nil {
		return err
	}
	parallel.For(output.Rows(), func(r int) {
		row := output.Row(r)
		for c, b := range bias {
			row[c] += b
		}
	}, e.cfg)
	return nil
}

// FillBias overwrites every row of output with bias.
func FillBias[T tensor.Float](e *Engine, output *tensor.Matrix[T], bias []T) error {
	if err := tensor.CheckExtent("bias", "bias length", len(bias), output.Cols()); err != nil {
		return err
	}
	parallel.For(output.Rows(), func(r int) {
		copy(output.Row(r), bias)
	}, e.cfg)
	return nil
}

// AccumulateBiasGrad adds the per-channel sums of dOutput over all rows
// into dBias. Rows are summed in order, so the result is independent of the
// worker count.
func AccumulateBiasGrad[T tensor.Float](e *Engine, dOutput *tensor.Matrix[T], dBias []T) error {
	cols := dOutput.Cols()
	if err := tensor.CheckExtent("bias gradient", "bias length", len(dBias), cols); err != nil {
		return err
	}
	rows, data := dOutput.Rows(), dOutput.Data()
	parallel.For(cols, func(c int) {
		var s T
		for r := 0; r < rows; r++ {
			s += data[r*cols+c]
		}
		dBias[c] += s
	}, e.cfg)
	return nil
}
