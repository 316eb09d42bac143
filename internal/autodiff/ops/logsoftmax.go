package ops

import (
	"math"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// LogSoftmaxOp represents a row-wise log-softmax over a 2D tensor.
//
// Forward (per row, with the log-sum-exp trick):
//
//	y_i = x_i - (max(x) + log Σ_j exp(x_j - max(x)))
//
// Backward (per row):
//
//	∂L/∂x_i = g_i - exp(y_i) * Σ_j g_j
//
// where g is the output gradient and exp(y) recovers softmax(x) from the
// stored output.
type LogSoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogSoftmaxOp creates a new LogSoftmaxOp.
func NewLogSoftmaxOp(input, output *tensor.RawTensor) *LogSoftmaxOp {
	return &LogSoftmaxOp{input: input, output: output}
}

// Backward computes the log-softmax gradient row by row.
func (op *LogSoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	rows, cols := require2D("LogSoftmaxOp", op.output)

	grad := zerosLike(op.input.Shape(), backend.Device())
	gradData := grad.AsFloat32()
	outData := op.output.AsFloat32()
	gData := outputGrad.AsFloat32()

	for r := 0; r < rows; r++ {
		base := r * cols

		var gSum float64
		for c := 0; c < cols; c++ {
			gSum += float64(gData[base+c])
		}

		for c := 0; c < cols; c++ {
			softmax := math.Exp(float64(outData[base+c]))
			gradData[base+c] = gData[base+c] - float32(softmax*gSum)
		}
	}

	return []*tensor.RawTensor{grad}
}

// Inputs returns the input tensor.
func (op *LogSoftmaxOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the log-softmax tensor.
func (op *LogSoftmaxOp) Output() *tensor.RawTensor { return op.output }
