package autodiff

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/backend/cpu"
	"github.com/kiln-ml/kiln/internal/tensor"
)

func rawFloat32(t *testing.T, shape tensor.Shape, data []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), data)
	return raw
}

func rawInt64(t *testing.T, shape tensor.Shape, data []int64) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsInt64(), data)
	return raw
}

func TestTapeRecording(t *testing.T) {
	ad := New(cpu.New())

	a := rawFloat32(t, tensor.Shape{2}, []float32{1, 2})
	b := rawFloat32(t, tensor.Shape{2}, []float32{3, 4})

	ad.Add(a, b)
	ad.Mul(a, b)
	assert.Equal(t, 2, ad.Tape().NumOps())

	ad.Tape().StopRecording()
	ad.Add(a, b)
	assert.Equal(t, 2, ad.Tape().NumOps())

	ad.Tape().Clear()
	assert.Equal(t, 0, ad.Tape().NumOps())
}

func TestBackwardAdd(t *testing.T) {
	ad := New(cpu.New())

	a := rawFloat32(t, tensor.Shape{3}, []float32{1, 2, 3})
	b := rawFloat32(t, tensor.Shape{3}, []float32{4, 5, 6})

	sum := ad.Add(a, b)
	loss := ad.Sum(sum)

	grads := Backward(loss, ad)

	require.Contains(t, grads, a)
	require.Contains(t, grads, b)
	assert.Equal(t, []float32{1, 1, 1}, grads[a].AsFloat32())
	assert.Equal(t, []float32{1, 1, 1}, grads[b].AsFloat32())
}

func TestBackwardMul(t *testing.T) {
	ad := New(cpu.New())

	a := rawFloat32(t, tensor.Shape{3}, []float32{1, 2, 3})
	b := rawFloat32(t, tensor.Shape{3}, []float32{4, 5, 6})

	loss := ad.Sum(ad.Mul(a, b))
	grads := Backward(loss, ad)

	// d(a*b)/da = b, d(a*b)/db = a
	assert.Equal(t, []float32{4, 5, 6}, grads[a].AsFloat32())
	assert.Equal(t, []float32{1, 2, 3}, grads[b].AsFloat32())
}

func TestBackwardBroadcastAdd(t *testing.T) {
	ad := New(cpu.New())

	// [2,3] + [3] broadcasts the bias across rows; its gradient must be
	// the column sums.
	x := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	bias := rawFloat32(t, tensor.Shape{3}, []float32{10, 20, 30})

	loss := ad.Sum(ad.Add(x, bias))
	grads := Backward(loss, ad)

	require.Contains(t, grads, bias)
	assert.Equal(t, tensor.Shape{3}, grads[bias].Shape())
	assert.Equal(t, []float32{2, 2, 2}, grads[bias].AsFloat32())
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, grads[x].AsFloat32())
}

func TestBackwardMatMul(t *testing.T) {
	ad := New(cpu.New())

	a := rawFloat32(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	b := rawFloat32(t, tensor.Shape{2, 2}, []float32{5, 6, 7, 8})

	loss := ad.Sum(ad.MatMul(a, b))
	grads := Backward(loss, ad)

	// With seed G = ones: dL/dA = G @ B^T, dL/dB = A^T @ G.
	assert.Equal(t, []float32{11, 15, 11, 15}, grads[a].AsFloat32())
	assert.Equal(t, []float32{4, 4, 6, 6}, grads[b].AsFloat32())
}

func TestBackwardReLU(t *testing.T) {
	ad := New(cpu.New())

	x := rawFloat32(t, tensor.Shape{4}, []float32{-2, -0.5, 0.5, 2})

	out := ad.ReLU(x)
	assert.Equal(t, []float32{0, 0, 0.5, 2}, out.AsFloat32())

	loss := ad.Sum(out)
	grads := Backward(loss, ad)
	assert.Equal(t, []float32{0, 0, 1, 1}, grads[x].AsFloat32())
}

func TestBackwardChain(t *testing.T) {
	ad := New(cpu.New())

	// loss = sum(relu(x @ w)) for a single positive path
	x := rawFloat32(t, tensor.Shape{1, 2}, []float32{1, -1})
	w := rawFloat32(t, tensor.Shape{2, 2}, []float32{2, -1, 1, 3})

	h := ad.MatMul(x, w) // [1, -4]
	loss := ad.Sum(ad.ReLU(h))

	grads := Backward(loss, ad)

	// Only the first output survives the ReLU, so dL/dw = x^T @ [1, 0].
	assert.Equal(t, []float32{1, 0, -1, 0}, grads[w].AsFloat32())
	// dL/dx = [1, 0] @ w^T = [2, 1]
	assert.Equal(t, []float32{2, 1}, grads[x].AsFloat32())
}

func TestLogSoftmaxForward(t *testing.T) {
	ad := New(cpu.New())

	x := rawFloat32(t, tensor.Shape{1, 3}, []float32{1, 2, 3})
	out := ad.LogSoftmax(x)

	// Each row must exponentiate to a probability distribution.
	var total float64
	for _, v := range out.AsFloat32() {
		assert.LessOrEqual(t, v, float32(0))
		total += math.Exp(float64(v))
	}
	assert.InDelta(t, 1.0, total, 1e-6)
}

func TestBackwardLogSoftmax(t *testing.T) {
	ad := New(cpu.New())

	x := rawFloat32(t, tensor.Shape{1, 3}, []float32{0.5, 1.5, -1})

	out := ad.LogSoftmax(x)
	loss := ad.Sum(out)
	grads := Backward(loss, ad)

	// dL/dx_i = g_i - softmax_i * sum(g); with g = ones and 3 classes
	// the gradient is 1 - 3*softmax_i, which sums to zero.
	gradData := grads[x].AsFloat32()
	outData := out.AsFloat32()
	var sum float64
	for i := range gradData {
		softmax := math.Exp(float64(outData[i]))
		assert.InDelta(t, 1-3*softmax, float64(gradData[i]), 1e-5)
		sum += float64(gradData[i])
	}
	assert.InDelta(t, 0, sum, 1e-5)
}

func TestNLLForwardAndBackward(t *testing.T) {
	ad := New(cpu.New())

	logProbs := rawFloat32(t, tensor.Shape{2, 3}, []float32{
		-0.1, -2.0, -3.0,
		-4.0, -0.2, -5.0,
	})
	targets := rawInt64(t, tensor.Shape{2}, []int64{0, 1})

	loss := ad.NLL(logProbs, targets)
	require.Equal(t, tensor.Shape{1}, loss.Shape())
	assert.InDelta(t, (0.1+0.2)/2, float64(loss.AsFloat32()[0]), 1e-6)

	grads := Backward(loss, ad)
	require.Contains(t, grads, logProbs)
	assert.NotContains(t, grads, targets)

	want := []float32{-0.5, 0, 0, 0, -0.5, 0}
	assert.Equal(t, want, grads[logProbs].AsFloat32())
}

func TestNLLTargetOutOfRange(t *testing.T) {
	ad := New(cpu.New())

	logProbs := rawFloat32(t, tensor.Shape{1, 3}, []float32{-1, -1, -1})
	targets := rawInt64(t, tensor.Shape{1}, []int64{3})

	assert.Panics(t, func() {
		ad.NLL(logProbs, targets)
	})
}

func TestGradientAccumulation(t *testing.T) {
	ad := New(cpu.New())

	// x feeds two operations; gradients must accumulate.
	x := rawFloat32(t, tensor.Shape{2}, []float32{1, 2})

	loss := ad.Sum(ad.Add(ad.MulScalar(x, 2), x))
	grads := Backward(loss, ad)

	// d(2x + x)/dx = 3
	assert.Equal(t, []float32{3, 3}, grads[x].AsFloat32())
}

func TestBackwardClearsTape(t *testing.T) {
	ad := New(cpu.New())

	x := rawFloat32(t, tensor.Shape{2}, []float32{1, 2})
	loss := ad.Sum(x)

	Backward(loss, ad)
	assert.Equal(t, 0, ad.Tape().NumOps())
	assert.True(t, ad.Tape().IsRecording())
}

func TestBackwardEmptyTapePanics(t *testing.T) {
	ad := New(cpu.New())
	loss := rawFloat32(t, tensor.Shape{1}, []float32{0})

	assert.Panics(t, func() {
		Backward(loss, ad)
	})
}

func TestTransposeRecorded(t *testing.T) {
	ad := New(cpu.New())

	w := rawFloat32(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	wt := ad.Transpose(w)
	require.Equal(t, tensor.Shape{3, 2}, wt.Shape())

	loss := ad.Sum(wt)
	grads := Backward(loss, ad)

	require.Contains(t, grads, w)
	assert.Equal(t, tensor.Shape{2, 3}, grads[w].Shape())
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, grads[w].AsFloat32())
}

func TestSoftmaxNotRecorded(t *testing.T) {
	ad := New(cpu.New())

	x := rawFloat32(t, tensor.Shape{1, 3}, []float32{1, 2, 3})
	ad.Softmax(x)
	assert.Equal(t, 0, ad.Tape().NumOps())
}

func TestNameAndDevice(t *testing.T) {
	ad := New(cpu.New())
	assert.Equal(t, "Autodiff(CPU)", ad.Name())
	assert.Equal(t, tensor.CPU, ad.Device())
}
