package ops

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// reduceBroadcast sums a gradient down to targetShape, undoing broadcast
// expansion from the forward pass. Dimensions that were missing or of size 1
// in the input are summed out of the gradient. Returns the gradient unchanged
// when no broadcasting happened.
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		return grad
	}

	out := zerosLike(targetShape, backend.Device())
	outData := out.AsFloat32()
	gradData := grad.AsFloat32()

	// Effective strides of the target viewed through the gradient's shape:
	// broadcast dims get stride 0, so multiple gradient elements accumulate
	// into the same target element.
	strides := targetShape.ComputeStrides()
	eff := make([]int, len(gradShape))
	offset := len(gradShape) - len(targetShape)
	for d := range gradShape {
		s := d - offset
		if s < 0 || targetShape[s] == 1 {
			eff[d] = 0
		} else {
			eff[d] = strides[s]
		}
	}

	idx := make([]int, len(gradShape))
	for i := range gradData {
		off := 0
		for d := range idx {
			off += idx[d] * eff[d]
		}
		outData[off] += gradData[i]
		advance(idx, gradShape)
	}

	return out
}

// zerosLike allocates a zero float32 tensor of the given shape.
func zerosLike(shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape.Clone(), tensor.Float32, device)
	if err != nil {
		panic(err)
	}
	return raw
}

// advance increments a multi-dimensional index in row-major order.
func advance(idx []int, shape tensor.Shape) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < shape[d] {
			return
		}
		idx[d] = 0
	}
}

// require2D panics unless t is 2D; returns (rows, cols).
func require2D(op string, t *tensor.RawTensor) (int, int) {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("ops.%s: expected 2D tensor, got shape %v", op, shape))
	}
	return shape[0], shape[1]
}
