// Package ops defines the differentiable operations recorded on the gradient tape.
//
// Each operation captures its inputs and output during the forward pass and
// knows how to turn the gradient of its output into gradients of its inputs.
//
// Supported operations:
//   - AddOp/SubOp/MulOp/DivOp: element-wise arithmetic with broadcast-aware gradients
//   - MatMulOp: d(A@B)/dA = grad@Bᵀ, d(A@B)/dB = Aᵀ@grad
//   - TransposeOp/ReshapeOp: shape bookkeeping so gradients reach the original tensors
//   - MulScalarOp, ExpOp, LogOp: element-wise math
//   - ReLUOp: gradient masked to positive inputs
//   - LogSoftmaxOp: grad_x = grad_y - softmax(x) * Σ grad_y per row
//   - NLLOp: negative log-likelihood over log-probabilities (mean reduction)
//   - SumOp: total-sum reduction
package ops

import "github.com/kiln-ml/kiln/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is index-aligned with Inputs().
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
