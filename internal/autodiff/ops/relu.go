package ops

import "github.com/kiln-ml/kiln/internal/tensor"

// ReLUOp represents the rectified linear unit: output = max(0, input).
//
// d(ReLU(x))/dx = 1 where x > 0, else 0.
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: input, output: output}
}

// Backward masks the gradient to positions where the input was positive.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := zerosLike(op.input.Shape(), backend.Device())
	gradData := grad.AsFloat32()
	inData := op.input.AsFloat32()
	outGradData := outputGrad.AsFloat32()

	for i, v := range inData {
		if v > 0 {
			gradData[i] = outGradData[i]
		}
	}

	return []*tensor.RawTensor{grad}
}

// Inputs returns the input tensor.
func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns max(0, input).
func (op *ReLUOp) Output() *tensor.RawTensor { return op.output }
