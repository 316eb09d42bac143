package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) → (M, N).
// The heavy lifting is delegated to gonum's float32 BLAS Gemm.
func (b *Backend) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("MatMul", x)
	requireFloat32("MatMul", y)

	xShape := x.Shape()
	yShape := y.Shape()
	if len(xShape) != 2 || len(yShape) != 2 {
		panic(fmt.Sprintf("cpu.MatMul: expected 2D tensors, got %v @ %v", xShape, yShape))
	}
	if xShape[1] != yShape[0] {
		panic(fmt.Sprintf("cpu.MatMul: inner dimensions do not match: %v @ %v", xShape, yShape))
	}

	m, k, n := xShape[0], xShape[1], yShape[1]
	out := mustNewRaw(tensor.Shape{m, n}, tensor.Float32, b.Device())

	a := blas32.General{Rows: m, Cols: k, Stride: k, Data: x.AsFloat32()}
	c := blas32.General{Rows: k, Cols: n, Stride: n, Data: y.AsFloat32()}
	dst := blas32.General{Rows: m, Cols: n, Stride: n, Data: out.AsFloat32()}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, c, 0, dst)

	return out
}
