package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/tensor"
)

func raw(t *testing.T, shape tensor.Shape, values []float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), values)
	return r
}

func TestAdd(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	y := raw(t, tensor.Shape{2, 2}, []float32{10, 20, 30, 40})

	out := b.Add(x, y)
	assert.Equal(t, []float32{11, 22, 33, 44}, out.AsFloat32())
	// Inputs untouched.
	assert.Equal(t, []float32{1, 2, 3, 4}, x.AsFloat32())
}

func TestAddBroadcastsBias(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	bias := raw(t, tensor.Shape{1, 3}, []float32{10, 20, 30})

	out := b.Add(x, bias)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestSubMulDiv(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{3}, []float32{6, 8, 10})
	y := raw(t, tensor.Shape{3}, []float32{2, 4, 5})

	assert.Equal(t, []float32{4, 4, 5}, b.Sub(x, y).AsFloat32())
	assert.Equal(t, []float32{12, 32, 50}, b.Mul(x, y).AsFloat32())
	assert.Equal(t, []float32{3, 2, 2}, b.Div(x, y).AsFloat32())
}

func TestIncompatibleShapesPanic(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 3}, make([]float32, 6))
	y := raw(t, tensor.Shape{2, 4}, make([]float32, 8))

	assert.Panics(t, func() { b.Add(x, y) })
}

func TestMatMul(t *testing.T) {
	b := New()
	// [1 2; 3 4] @ [5 6; 7 8] = [19 22; 43 50]
	x := raw(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	y := raw(t, tensor.Shape{2, 2}, []float32{5, 6, 7, 8})

	out := b.MatMul(x, y)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{19, 22, 43, 50}, out.AsFloat32())
}

func TestMatMulRectangular(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{1, 3}, []float32{1, 2, 3})
	y := raw(t, tensor.Shape{3, 2}, []float32{1, 0, 0, 1, 1, 1})

	out := b.MatMul(x, y)
	assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Equal(t, []float32{4, 5}, out.AsFloat32())
}

func TestMatMulInnerDimMismatchPanics(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 3}, make([]float32, 6))
	y := raw(t, tensor.Shape{2, 2}, make([]float32, 4))

	assert.Panics(t, func() { b.MatMul(x, y) })
}

func TestScalarOps(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{3}, []float32{1, 2, 3})

	assert.Equal(t, []float32{2, 4, 6}, b.MulScalar(x, 2).AsFloat32())
	assert.Equal(t, []float32{11, 12, 13}, b.AddScalar(x, 10).AsFloat32())
}

func TestExpLog(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2}, []float32{0, 1})

	exp := b.Exp(x).AsFloat32()
	assert.InDelta(t, 1.0, float64(exp[0]), 1e-6)
	assert.InDelta(t, math.E, float64(exp[1]), 1e-5)

	back := b.Log(b.Exp(x)).AsFloat32()
	assert.InDelta(t, 0.0, float64(back[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(back[1]), 1e-6)
}

func TestReLU(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{4}, []float32{-2, -0.5, 0, 3})

	assert.Equal(t, []float32{0, 0, 0, 3}, b.ReLU(x).AsFloat32())
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 1000, 1001, 1002})

	out := b.Softmax(x).AsFloat32()
	for r := 0; r < 2; r++ {
		var sum float64
		for c := 0; c < 3; c++ {
			sum += float64(out[r*3+c])
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	// Large inputs must not overflow thanks to max shifting.
	assert.False(t, math.IsNaN(float64(out[3])))
}

func TestLogSoftmaxMatchesLogOfSoftmax(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{1, 4}, []float32{0.5, -1, 2, 0})

	direct := b.LogSoftmax(x).AsFloat32()
	viaLog := b.Log(b.Softmax(x)).AsFloat32()
	for i := range direct {
		assert.InDelta(t, float64(viaLog[i]), float64(direct[i]), 1e-5)
		assert.LessOrEqual(t, direct[i], float32(0))
	}
}

func TestSum(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})

	out := b.Sum(x)
	assert.Equal(t, tensor.Shape{1}, out.Shape())
	assert.Equal(t, float32(10), out.AsFloat32()[0])
}

func TestArgmax(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{3, 3}, []float32{
		0, 5, 1,
		9, 2, 3,
		1, 1, 1, // tie resolves to the lowest index
	})

	out := b.Argmax(x)
	assert.Equal(t, tensor.Int64, out.DType())
	assert.Equal(t, []int64{1, 0, 0}, out.AsInt64())
}

func TestReshape(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	out := b.Reshape(x, tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, x.AsFloat32(), out.AsFloat32())

	// Copy, not a view.
	out.AsFloat32()[0] = 99
	assert.Equal(t, float32(1), x.AsFloat32()[0])

	assert.Panics(t, func() { b.Reshape(x, tensor.Shape{4, 2}) })
}

func TestTranspose2D(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	out := b.Transpose(x)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.AsFloat32())

	// Explicit axes round-trip.
	back := b.Transpose(out, 1, 0)
	assert.Equal(t, x.AsFloat32(), back.AsFloat32())
}

func TestTransposeInvalidAxesPanics(t *testing.T) {
	b := New()
	x := raw(t, tensor.Shape{2, 3}, make([]float32, 6))

	assert.Panics(t, func() { b.Transpose(x, 0, 0) })
	assert.Panics(t, func() { b.Transpose(x, 0, 2) })
}

func TestNameAndDevice(t *testing.T) {
	b := New()
	assert.Equal(t, "CPU", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())
}
