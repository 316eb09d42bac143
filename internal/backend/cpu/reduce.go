package cpu

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Sum reduces the tensor to its total sum, returned as a shape-[1] tensor.
func (b *Backend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("Sum", x)

	out := mustNewRaw(tensor.Shape{1}, tensor.Float32, b.Device())

	var sum float64
	for _, v := range x.AsFloat32() {
		sum += float64(v)
	}
	out.AsFloat32()[0] = float32(sum)

	return out
}

// Argmax returns the row-wise argmax of a 2D tensor as an int64 tensor of
// shape [rows]. Ties resolve to the lowest index.
func (b *Backend) Argmax(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("Argmax", x)
	rows, cols := rows2D("Argmax", x)

	out := mustNewRaw(tensor.Shape{rows}, tensor.Int64, b.Device())
	xData := x.AsFloat32()
	outData := out.AsInt64()

	for r := 0; r < rows; r++ {
		row := xData[r*cols : (r+1)*cols]
		best := 0
		for i, v := range row[1:] {
			if v > row[best] {
				best = i + 1
			}
		}
		outData[r] = int64(best)
	}

	return out
}

// rows2D validates that t is 2D and returns (rows, cols).
func rows2D(op string, t *tensor.RawTensor) (int, int) {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cpu.%s: expected 2D tensor, got shape %v", op, shape))
	}
	return shape[0], shape[1]
}
