package cpu

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Reshape returns a tensor with the same data and a new shape.
// The element count must be preserved. Data is copied, not aliased.
func (b *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("cpu.Reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}

	out := mustNewRaw(newShape.Clone(), t.DType(), b.Device())
	copy(out.Data(), t.Data())
	return out
}

// Transpose permutes the tensor's dimensions. With no axes, all dimensions
// are reversed (standard transpose for 2D). Works for any dtype: elements
// are moved bytewise.
func (b *Backend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("cpu.Transpose: got %d axes for %d dimensions", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("cpu.Transpose: invalid axes %v for shape %v", axes, shape))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	out := mustNewRaw(outShape, t.DType(), b.Device())

	eltSize := t.DType().Size()
	srcStrides := shape.ComputeStrides()
	src := t.Data()
	dst := out.Data()

	idx := make([]int, ndim)
	for i := 0; i < out.NumElements(); i++ {
		srcOff := 0
		for d, ax := range axes {
			srcOff += idx[d] * srcStrides[ax]
		}
		copy(dst[i*eltSize:(i+1)*eltSize], src[srcOff*eltSize:(srcOff+1)*eltSize])
		advance(idx, outShape)
	}

	return out
}
