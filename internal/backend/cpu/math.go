package cpu

import (
	"math"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// MulScalar multiplies every element by a scalar.
func (b *Backend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return b.unary("MulScalar", x, func(v float32) float32 { return v * float32(scalar) })
}

// AddScalar adds a scalar to every element.
func (b *Backend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return b.unary("AddScalar", x, func(v float32) float32 { return v + float32(scalar) })
}

// Exp computes the element-wise exponential.
func (b *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("Exp", x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Log computes the element-wise natural logarithm.
func (b *Backend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("Log", x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

// ReLU computes max(0, x) element-wise. Exposed beyond the core Backend
// interface; nn activation modules discover it via interface assertion.
func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unary("ReLU", x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// Softmax applies softmax along the last dimension of a 2D tensor.
// Rows are max-shifted before exponentiation for numerical stability.
func (b *Backend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("Softmax", x)
	rows, cols := rows2D("Softmax", x)

	out := mustNewRaw(x.Shape().Clone(), tensor.Float32, b.Device())
	xData := x.AsFloat32()
	outData := out.AsFloat32()

	for r := 0; r < rows; r++ {
		row := xData[r*cols : (r+1)*cols]
		dst := outData[r*cols : (r+1)*cols]

		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}

		var sum float32
		for i, v := range row {
			e := float32(math.Exp(float64(v - maxV)))
			dst[i] = e
			sum += e
		}
		for i := range dst {
			dst[i] /= sum
		}
	}

	return out
}

// LogSoftmax applies log(softmax(x)) along the last dimension of a 2D tensor
// using the log-sum-exp trick. Discovered by nn modules via interface
// assertion, like ReLU.
func (b *Backend) LogSoftmax(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("LogSoftmax", x)
	rows, cols := rows2D("LogSoftmax", x)

	out := mustNewRaw(x.Shape().Clone(), tensor.Float32, b.Device())
	xData := x.AsFloat32()
	outData := out.AsFloat32()

	for r := 0; r < rows; r++ {
		row := xData[r*cols : (r+1)*cols]
		dst := outData[r*cols : (r+1)*cols]
		logSoftmaxRow(row, dst)
	}

	return out
}

// logSoftmaxRow writes log(softmax(row)) into dst:
// LogSoftmax(z)[i] = z[i] - (max(z) + log(Σ exp(z - max(z)))).
func logSoftmaxRow(row, dst []float32) {
	maxV := row[0]
	for _, v := range row[1:] {
		if v > maxV {
			maxV = v
		}
	}

	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxV))
	}
	logSumExp := float64(maxV) + math.Log(sum)

	for i, v := range row {
		dst[i] = float32(float64(v) - logSumExp)
	}
}

func (b *Backend) unary(op string, x *tensor.RawTensor, f func(v float32) float32) *tensor.RawTensor {
	requireFloat32(op, x)

	out := mustNewRaw(x.Shape().Clone(), tensor.Float32, b.Device())
	xData := x.AsFloat32()
	outData := out.AsFloat32()
	for i, v := range xData {
		outData[i] = f(v)
	}
	return out
}
