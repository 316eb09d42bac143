package ops

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// NLLOp represents negative log-likelihood loss over log-probabilities
// with mean reduction:
//
//	Loss = -mean(logProbs[b, targets[b]])
//
// Backward:
//
//	∂L/∂logProbs[b, c] = -1/batch  if c == targets[b], else 0
//
// (scaled by the incoming scalar gradient). Targets are class indices and
// receive no gradient.
type NLLOp struct {
	logProbs *tensor.RawTensor // [batch, classes], float32
	targets  *tensor.RawTensor // [batch], int64
	output   *tensor.RawTensor // [1], float32
}

// NewNLLOp creates a new NLLOp.
func NewNLLOp(logProbs, targets, output *tensor.RawTensor) *NLLOp {
	return &NLLOp{logProbs: logProbs, targets: targets, output: output}
}

// NLLForward computes the negative log-likelihood loss (mean reduction).
func NLLForward(logProbs, targets *tensor.RawTensor, device tensor.Device) *tensor.RawTensor {
	batch, classes := require2D("NLLForward", logProbs)

	targetData := targets.AsInt64()
	if len(targetData) != batch {
		panic(fmt.Sprintf("ops.NLLForward: targets length %d does not match batch size %d", len(targetData), batch))
	}

	lpData := logProbs.AsFloat32()

	var total float64
	for b := 0; b < batch; b++ {
		t := int(targetData[b])
		if t < 0 || t >= classes {
			panic(fmt.Sprintf("ops.NLLForward: target %d out of range [0, %d)", t, classes))
		}
		total -= float64(lpData[b*classes+t])
	}

	out := zerosLike(tensor.Shape{1}, device)
	out.AsFloat32()[0] = float32(total / float64(batch))
	return out
}

// Backward spreads -1/batch over the target positions.
func (op *NLLOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	batch, classes := require2D("NLLOp", op.logProbs)

	grad := zerosLike(op.logProbs.Shape(), backend.Device())
	gradData := grad.AsFloat32()
	targetData := op.targets.AsInt64()

	scale := -outputGrad.AsFloat32()[0] / float32(batch)
	for b := 0; b < batch; b++ {
		gradData[b*classes+int(targetData[b])] = scale
	}

	// Targets are indices: no gradient.
	return []*tensor.RawTensor{grad, nil}
}

// Inputs returns [logProbs, targets].
func (op *NLLOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logProbs, op.targets}
}

// Output returns the shape-[1] loss.
func (op *NLLOp) Output() *tensor.RawTensor { return op.output }
