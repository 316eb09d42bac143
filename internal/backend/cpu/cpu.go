// Package cpu implements the CPU compute backend.
//
// Arithmetic kernels are pure Go over float32 buffers; matrix multiplication
// delegates to gonum's BLAS implementation. Operations never modify their
// inputs in place, so results are always freshly allocated.
package cpu

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Backend is the CPU implementation of tensor.Backend.
type Backend struct{}

// New creates a new CPU backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.CPU
}

// Add performs element-wise addition with broadcasting.
func (b *Backend) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.broadcastBinary("Add", x, y, func(a, c float32) float32 { return a + c })
}

// Sub performs element-wise subtraction with broadcasting.
func (b *Backend) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.broadcastBinary("Sub", x, y, func(a, c float32) float32 { return a - c })
}

// Mul performs element-wise multiplication with broadcasting.
func (b *Backend) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.broadcastBinary("Mul", x, y, func(a, c float32) float32 { return a * c })
}

// Div performs element-wise division with broadcasting.
func (b *Backend) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.broadcastBinary("Div", x, y, func(a, c float32) float32 { return a / c })
}

// broadcastBinary applies f element-wise over two float32 tensors,
// broadcasting shapes per NumPy rules.
func (b *Backend) broadcastBinary(op string, x, y *tensor.RawTensor, f func(a, c float32) float32) *tensor.RawTensor {
	requireFloat32(op, x)
	requireFloat32(op, y)

	outShape, needsBroadcast, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		panic(fmt.Sprintf("cpu.%s: %v", op, err))
	}

	out := mustNewRaw(outShape, tensor.Float32, b.Device())
	outData := out.AsFloat32()
	xData := x.AsFloat32()
	yData := y.AsFloat32()

	if !needsBroadcast {
		for i := range outData {
			outData[i] = f(xData[i], yData[i])
		}
		return out
	}

	// General case: walk the output index space, mapping each coordinate
	// back to the inputs with stride 0 on broadcast dimensions.
	xStrides := broadcastStrides(x.Shape(), outShape)
	yStrides := broadcastStrides(y.Shape(), outShape)
	idx := make([]int, len(outShape))

	for i := range outData {
		xOff, yOff := 0, 0
		for d := range idx {
			xOff += idx[d] * xStrides[d]
			yOff += idx[d] * yStrides[d]
		}
		outData[i] = f(xData[xOff], yData[yOff])
		advance(idx, outShape)
	}

	return out
}

// broadcastStrides returns effective strides of `shape` viewed as `outShape`:
// right-aligned, with stride 0 for broadcast (size-1 or missing) dimensions.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := shape.ComputeStrides()
	eff := make([]int, len(outShape))
	offset := len(outShape) - len(shape)
	for d := range outShape {
		s := d - offset
		if s < 0 || shape[s] == 1 {
			eff[d] = 0
		} else {
			eff[d] = strides[s]
		}
	}
	return eff
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

func requireFloat32(op string, t *tensor.RawTensor) {
	if t.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu.%s: supports float32 tensors, got %s", op, t.DType()))
	}
}

func mustNewRaw(shape tensor.Shape, dtype tensor.DataType, device tensor.Device) *tensor.RawTensor {
	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		panic(err)
	}
	return raw
}
