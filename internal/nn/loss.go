package nn

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// NLLBackend is implemented by backends with a fused negative
// log-likelihood kernel that participates in gradient recording.
type NLLBackend interface {
	NLL(logProbs, targets *tensor.RawTensor) *tensor.RawTensor
}

// NLLLoss computes the negative log-likelihood loss over log-probabilities
// with mean reduction:
//
//	Loss = -mean(logProbs[b, targets[b]])
//
// Inputs are the log-probability rows produced by LogSoftmax; targets are
// int64 class indices. Together LogSoftmax + NLLLoss form the standard
// classification objective.
//
// Example:
//
//	nll := nn.NewNLLLoss[Backend]()
//	logProbs := model.Forward(input, nn.Train)
//	loss := nll.Forward(logProbs, targets)
type NLLLoss[B tensor.Backend] struct{}

// NewNLLLoss creates a new NLL loss function.
func NewNLLLoss[B tensor.Backend]() *NLLLoss[B] {
	return &NLLLoss[B]{}
}

// Forward computes the loss as a shape-[1] scalar tensor.
//
// When the backend implements NLLBackend the fused kernel is used, which
// records the operation for gradient computation. Otherwise the loss is
// computed directly from the buffers; that path is inference-only.
func (n *NLLLoss[B]) Forward(logProbs *tensor.Tensor[float32, B], targets *tensor.Tensor[int64, B]) *tensor.Tensor[float32, B] {
	shape := logProbs.Shape()
	if len(shape) != 2 {
		panic(shapeMismatchf("NLLLoss: expected 2D log-probabilities [batch, classes], got %v", shape))
	}
	if targets.NumElements() != shape[0] {
		panic(shapeMismatchf("NLLLoss: %d targets for batch of %d", targets.NumElements(), shape[0]))
	}

	backend := logProbs.Backend()
	if nb, ok := any(backend).(NLLBackend); ok {
		return tensor.New[float32, B](nb.NLL(logProbs.Raw(), targets.Raw()), backend)
	}

	batch, classes := shape[0], shape[1]
	lpData := logProbs.Raw().AsFloat32()
	targetData := targets.Raw().AsInt64()

	var total float64
	for b := 0; b < batch; b++ {
		t := int(targetData[b])
		if t < 0 || t >= classes {
			panic(fmt.Sprintf("NLLLoss: target %d out of range [0, %d)", t, classes))
		}
		total -= float64(lpData[b*classes+t])
	}

	lossRaw, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, backend.Device())
	if err != nil {
		panic(err)
	}
	lossRaw.AsFloat32()[0] = float32(total / float64(batch))

	return tensor.New[float32, B](lossRaw, backend)
}

// Parameters returns nil; loss functions have no trainable parameters.
func (n *NLLLoss[B]) Parameters() []*Parameter[B] {
	return nil
}
