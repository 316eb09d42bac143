package nn

import (
	"github.com/kiln-ml/kiln/internal/tensor"
)

// ReLUBackend is implemented by backends with a ReLU kernel.
type ReLUBackend interface {
	ReLU(*tensor.RawTensor) *tensor.RawTensor
}

// LogSoftmaxBackend is implemented by backends with a fused log-softmax
// kernel over the last dimension.
type LogSoftmaxBackend interface {
	LogSoftmax(*tensor.RawTensor) *tensor.RawTensor
}

// ReLU is a rectified linear unit activation module: f(x) = max(0, x).
type ReLU[B tensor.Backend] struct{}

// NewReLU creates a new ReLU activation module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward applies ReLU element-wise. Mode is ignored.
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	backend := input.Backend()

	if rb, ok := any(backend).(ReLUBackend); ok {
		return tensor.New[float32, B](rb.ReLU(input.Raw()), backend)
	}

	panic("ReLU: backend must implement the ReLU operation (wrap it with autodiff.New or use cpu.New)")
}

// Parameters returns nil; ReLU has no trainable parameters.
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (r *ReLU[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for the stateless ReLU.
func (r *ReLU[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// LogSoftmax applies a row-wise log-softmax over the class dimension.
//
// The output rows are log-probabilities: each row exponentiates to a
// distribution summing to 1. Pairs with NLLLoss during training.
type LogSoftmax[B tensor.Backend] struct{}

// NewLogSoftmax creates a new LogSoftmax module.
func NewLogSoftmax[B tensor.Backend]() *LogSoftmax[B] {
	return &LogSoftmax[B]{}
}

// Forward applies log-softmax along the last dimension of a 2D input.
// Mode is ignored.
func (s *LogSoftmax[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	backend := input.Backend()

	if lb, ok := any(backend).(LogSoftmaxBackend); ok {
		return tensor.New[float32, B](lb.LogSoftmax(input.Raw()), backend)
	}

	// Numerically inferior to a fused kernel but always available.
	return input.Softmax().Log()
}

// Parameters returns nil; LogSoftmax has no trainable parameters.
func (s *LogSoftmax[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (s *LogSoftmax[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for the stateless LogSoftmax.
func (s *LogSoftmax[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}
