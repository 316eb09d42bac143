// Package autodiff implements reverse-mode automatic differentiation as a
// backend decorator. Backend wraps any tensor.Backend and records every
// operation on a GradientTape; calling Backward on the tape walks the
// recorded operations in reverse and returns gradients for each input.
package autodiff

import (
	"github.com/kiln-ml/kiln/internal/autodiff/ops"
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Backend wraps an inner compute backend and records operations for
// gradient computation. All arithmetic is delegated to the inner backend;
// the wrapper only observes inputs and outputs.
type Backend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates an autodiff backend wrapping the given inner backend.
// The tape starts out recording.
func New[B tensor.Backend](inner B) *Backend[B] {
	tape := NewGradientTape()
	tape.StartRecording()
	return &Backend[B]{inner: inner, tape: tape}
}

// Inner returns the wrapped backend.
func (a *Backend[B]) Inner() B { return a.inner }

// Tape returns the gradient tape.
func (a *Backend[B]) Tape() *GradientTape { return a.tape }

// Name returns the backend name, e.g. "Autodiff(CPU)".
func (a *Backend[B]) Name() string { return "Autodiff(" + a.inner.Name() + ")" }

// Device returns the inner backend's device.
func (a *Backend[B]) Device() tensor.Device { return a.inner.Device() }

// Add computes a + b and records an AddOp.
func (a *Backend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.Add(x, y)
	a.tape.Record(ops.NewAddOp(x, y, out))
	return out
}

// Sub computes a - b and records a SubOp.
func (a *Backend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.Sub(x, y)
	a.tape.Record(ops.NewSubOp(x, y, out))
	return out
}

// Mul computes a * b element-wise and records a MulOp.
func (a *Backend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.Mul(x, y)
	a.tape.Record(ops.NewMulOp(x, y, out))
	return out
}

// Div computes a / b element-wise and records a DivOp.
func (a *Backend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.Div(x, y)
	a.tape.Record(ops.NewDivOp(x, y, out))
	return out
}

// MatMul computes the matrix product and records a MatMulOp.
func (a *Backend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.MatMul(x, y)
	a.tape.Record(ops.NewMatMulOp(x, y, out))
	return out
}

// Reshape changes the tensor's shape and records a ReshapeOp.
func (a *Backend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	out := a.inner.Reshape(t, newShape)
	a.tape.Record(ops.NewReshapeOp(t, out))
	return out
}

// Transpose permutes the tensor's dimensions and records a TransposeOp.
func (a *Backend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	if len(axes) == 0 {
		// Mirror the inner backend's default: reverse all dimensions.
		axes = make([]int, len(t.Shape()))
		for i := range axes {
			axes[i] = len(axes) - 1 - i
		}
	}
	out := a.inner.Transpose(t, axes...)
	a.tape.Record(ops.NewTransposeOp(t, out, axes))
	return out
}

// MulScalar multiplies every element by scalar and records a MulScalarOp.
func (a *Backend[B]) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	out := a.inner.MulScalar(x, scalar)
	a.tape.Record(ops.NewMulScalarOp(x, out, scalar))
	return out
}

// AddScalar adds scalar to every element and records an AddScalarOp.
func (a *Backend[B]) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	out := a.inner.AddScalar(x, scalar)
	a.tape.Record(ops.NewAddScalarOp(x, out))
	return out
}

// Exp computes the element-wise exponential and records an ExpOp.
func (a *Backend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.Exp(x)
	a.tape.Record(ops.NewExpOp(x, out))
	return out
}

// Log computes the element-wise natural logarithm and records a LogOp.
func (a *Backend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.Log(x)
	a.tape.Record(ops.NewLogOp(x, out))
	return out
}

// Softmax delegates to the inner backend without recording. Training code
// differentiates through LogSoftmax instead; Softmax is an inference-only
// convenience.
func (a *Backend[B]) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	return a.inner.Softmax(x)
}

// Sum computes the total sum and records a SumOp.
func (a *Backend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := a.inner.Sum(x)
	a.tape.Record(ops.NewSumOp(x, out))
	return out
}

// Argmax delegates to the inner backend. Argmax is piecewise constant,
// so there is no gradient to record.
func (a *Backend[B]) Argmax(x *tensor.RawTensor) *tensor.RawTensor {
	return a.inner.Argmax(x)
}

// reluBackend is implemented by inner backends with a fused ReLU kernel.
type reluBackend interface {
	ReLU(x *tensor.RawTensor) *tensor.RawTensor
}

// logSoftmaxBackend is implemented by inner backends with a fused
// log-softmax kernel.
type logSoftmaxBackend interface {
	LogSoftmax(x *tensor.RawTensor) *tensor.RawTensor
}

// ReLU computes max(0, x) and records a ReLUOp. Uses the inner backend's
// fused kernel when available.
func (a *Backend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	var out *tensor.RawTensor
	if rb, ok := any(a.inner).(reluBackend); ok {
		out = rb.ReLU(x)
	} else {
		out = reluFallback(x)
	}
	a.tape.Record(ops.NewReLUOp(x, out))
	return out
}

// LogSoftmax computes a row-wise log-softmax and records a LogSoftmaxOp.
func (a *Backend[B]) LogSoftmax(x *tensor.RawTensor) *tensor.RawTensor {
	var out *tensor.RawTensor
	if lb, ok := any(a.inner).(logSoftmaxBackend); ok {
		out = lb.LogSoftmax(x)
	} else {
		out = a.inner.Log(a.inner.Softmax(x))
	}
	a.tape.Record(ops.NewLogSoftmaxOp(x, out))
	return out
}

// NLL computes the negative log-likelihood loss with mean reduction over
// log-probabilities and records an NLLOp. Targets are int64 class indices
// and receive no gradient.
func (a *Backend[B]) NLL(logProbs, targets *tensor.RawTensor) *tensor.RawTensor {
	out := ops.NLLForward(logProbs, targets, a.inner.Device())
	a.tape.Record(ops.NewNLLOp(logProbs, targets, out))
	return out
}

func reluFallback(x *tensor.RawTensor) *tensor.RawTensor {
	out := x.Clone()
	data := out.AsFloat32()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return out
}
