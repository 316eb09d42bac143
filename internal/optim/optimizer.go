// Package optim implements optimization algorithms for training.
//
// Provided optimizers:
//   - SGD: stochastic gradient descent with optional momentum
//   - Adam: adaptive moment estimation
//
// Design inspired by PyTorch's torch.optim but adapted for Go generics.
//
// Example:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9}, backend)
//
//	logProbs := model.Forward(input, nn.Train)
//	loss := nll.Forward(logProbs, targets)
//	grads := autodiff.Backward(loss.Raw(), backend)
//	optimizer.Step(grads)
//	optimizer.ZeroGrad()
package optim

import (
	"github.com/kiln-ml/kiln/internal/nn"
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
// SGD and Adam also satisfy nn.OptimizerState, so their buffers ride
// along in checkpoints.
type Optimizer interface {
	// Step applies gradient updates to all parameters. The map comes
	// from autodiff.Backward; parameters without a gradient are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients. Call before each
	// backward pass to prevent accumulation across steps.
	ZeroGrad()

	// Name returns the optimizer type, e.g. "SGD".
	Name() string

	// LR returns the current learning rate.
	LR() float64
}

// getGradient retrieves the gradient for a parameter, or nil when the
// parameter did not participate in the forward pass.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
