// Package nn implements neural network modules.
//
// The building blocks:
//   - Module interface: base interface for all components
//   - Parameter: trainable tensors with gradient slots
//   - Linear: fully connected layer
//   - ReLU, LogSoftmax: activations
//   - Dropout: stochastic regularization, active only in Train mode
//   - Classifier: configurable feed-forward classifier
//   - NLLLoss: negative log-likelihood over log-probabilities
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
// One deliberate departure: there is no ambient train/eval switch on the
// model. Forward takes an explicit Mode argument, so the caller always
// states which behavior it wants and a module can never be left in the
// wrong mode by a forgotten toggle.
package nn

import (
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Mode selects forward-pass behavior for modules that act differently
// during training and inference, such as Dropout.
type Mode int

const (
	// Eval runs the deterministic inference path.
	Eval Mode = iota
	// Train runs the training path: dropout masks are sampled.
	Train
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Eval:
		return "eval"
	case Train:
		return "train"
	default:
		return "unknown"
	}
}

// Module is the base interface for all neural network components.
//
// Modules compose into architectures; the Classifier is itself a Module
// built from Linear, ReLU, Dropout and LogSoftmax modules.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the module's output for the given input in the
	// given mode. Modules without mode-dependent behavior ignore mode.
	Forward(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module,
	// including nested module parameters. Returns nil for modules
	// without trainable state.
	Parameters() []*Parameter[B]

	// StateDict returns a map of parameter names to raw tensors.
	// Stateless modules return an empty map.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies parameter values from a state dictionary.
	// Shape disagreements are reported via ErrShapeMismatch.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}
