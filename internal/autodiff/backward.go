package autodiff

import (
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Gradients maps each input tensor to its accumulated gradient.
type Gradients = map[*tensor.RawTensor]*tensor.RawTensor

// Backward runs the backward pass from the given loss tensor, seeding it
// with a gradient of ones. The tape is cleared afterwards so the next
// forward pass starts fresh.
//
// The loss is typically a scalar (shape [1]); the seed gradient then
// reduces to dLoss/dLoss = 1.
func Backward[B tensor.Backend](loss *tensor.RawTensor, backend *Backend[B]) Gradients {
	if backend.Tape().NumOps() == 0 {
		panic("autodiff.Backward: no operations recorded, did you forget StartRecording?")
	}

	seed, err := tensor.NewRaw(loss.Shape(), loss.DType(), loss.Device())
	if err != nil {
		panic(err)
	}
	data := seed.AsFloat32()
	for i := range data {
		data[i] = 1
	}

	grads := backend.Tape().Backward(seed, backend.Inner())
	backend.Tape().Clear()
	return grads
}
