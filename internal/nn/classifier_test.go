package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/backend/cpu"
	"github.com/kiln-ml/kiln/internal/tensor"
)

func testArch() Architecture {
	return Architecture{InputSize: 20, OutputSize: 5, HiddenSizes: []int{16, 8}}
}

func TestArchitectureValidate(t *testing.T) {
	assert.NoError(t, testArch().Validate())
	assert.NoError(t, Architecture{InputSize: 4, OutputSize: 2}.Validate())

	assert.Error(t, Architecture{InputSize: 0, OutputSize: 2}.Validate())
	assert.Error(t, Architecture{InputSize: 4, OutputSize: -1}.Validate())
	assert.Error(t, Architecture{InputSize: 4, OutputSize: 2, HiddenSizes: []int{8, 0}}.Validate())
}

func TestArchitectureEqualAndString(t *testing.T) {
	a := Architecture{InputSize: 784, OutputSize: 10, HiddenSizes: []int{512, 256, 128}}
	b := Architecture{InputSize: 784, OutputSize: 10, HiddenSizes: []int{512, 256, 128}}
	c := Architecture{InputSize: 784, OutputSize: 10, HiddenSizes: []int{512, 256}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "784-512-256-128-10", a.String())
}

func TestNewClassifierRejectsBadConfig(t *testing.T) {
	backend := cpu.New()

	_, err := NewClassifier(Architecture{InputSize: 0, OutputSize: 10}, 0, backend)
	assert.Error(t, err)

	_, err = NewClassifier(testArch(), 1.0, backend)
	assert.Error(t, err)

	_, err = NewClassifier(testArch(), -0.5, backend)
	assert.Error(t, err)
}

func TestClassifierForwardShape(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0.2, backend)
	require.NoError(t, err)

	input := tensor.Randn[float32](tensor.Shape{3, 20}, backend)
	output := model.Forward(input, Eval)

	assert.Equal(t, tensor.Shape{3, 5}, output.Shape())
}

func TestClassifierOutputsLogProbabilities(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0.5, backend)
	require.NoError(t, err)

	input := tensor.Randn[float32](tensor.Shape{4, 20}, backend)

	for _, mode := range []Mode{Eval, Train} {
		output := model.Forward(input, mode)
		data := output.Data()
		for row := 0; row < 4; row++ {
			var total float64
			for col := 0; col < 5; col++ {
				v := data[row*5+col]
				assert.LessOrEqual(t, v, float32(0))
				total += math.Exp(float64(v))
			}
			assert.InDelta(t, 1.0, total, 1e-5, "mode %s row %d should be normalized", mode, row)
		}
	}
}

func TestClassifierEvalIsDeterministic(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0.5, backend)
	require.NoError(t, err)

	input := tensor.Randn[float32](tensor.Shape{2, 20}, backend)
	a := model.Forward(input, Eval)
	b := model.Forward(input, Eval)

	assert.Equal(t, a.Data(), b.Data())
}

func TestClassifierTrainModeVaries(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0.5, backend)
	require.NoError(t, err)

	input := tensor.Randn[float32](tensor.Shape{2, 20}, backend)
	a := model.Forward(input, Train)
	b := model.Forward(input, Train)

	assert.NotEqual(t, a.Data(), b.Data(), "dropout should make train passes differ")
}

func TestClassifierNoHiddenLayers(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(Architecture{InputSize: 6, OutputSize: 3}, 0, backend)
	require.NoError(t, err)

	input := tensor.Randn[float32](tensor.Shape{2, 6}, backend)
	output := model.Forward(input, Train)
	assert.Equal(t, tensor.Shape{2, 3}, output.Shape())

	params := model.Parameters()
	assert.Len(t, params, 2)
}

func TestClassifierForwardShapeMismatchPanics(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0, backend)
	require.NoError(t, err)

	input := tensor.Randn[float32](tensor.Shape{2, 21}, backend)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	}()
	model.Forward(input, Eval)
}

func TestClassifierStateDictKeys(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0, backend)
	require.NoError(t, err)

	stateDict := model.StateDict()
	require.Len(t, stateDict, 6)
	for _, key := range []string{
		"hidden_0.weight", "hidden_0.bias",
		"hidden_1.weight", "hidden_1.bias",
		"output.weight", "output.bias",
	} {
		assert.Contains(t, stateDict, key)
	}
	assert.Equal(t, tensor.Shape{16, 20}, stateDict["hidden_0.weight"].Shape())
	assert.Equal(t, tensor.Shape{5, 8}, stateDict["output.weight"].Shape())
}

func TestClassifierStateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	src, err := NewClassifier(testArch(), 0, backend)
	require.NoError(t, err)
	dst, err := NewClassifier(testArch(), 0, backend)
	require.NoError(t, err)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	input := tensor.Randn[float32](tensor.Shape{3, 20}, backend)
	assert.Equal(t, src.Forward(input, Eval).Data(), dst.Forward(input, Eval).Data())
}

func TestClassifierLoadStateDictArchMismatch(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0, backend)
	require.NoError(t, err)

	// Same layer count, different widths.
	other, err := NewClassifier(Architecture{InputSize: 20, OutputSize: 5, HiddenSizes: []int{12, 8}}, 0, backend)
	require.NoError(t, err)
	err = model.LoadStateDict(other.StateDict())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// Different layer count.
	deeper, err := NewClassifier(Architecture{InputSize: 20, OutputSize: 5, HiddenSizes: []int{16, 8, 4}}, 0, backend)
	require.NoError(t, err)
	err = model.LoadStateDict(deeper.StateDict())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestClassifierParameterCount(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(testArch(), 0, backend)
	require.NoError(t, err)

	// Two hidden layers and the output layer, weight+bias each.
	assert.Len(t, model.Parameters(), 6)
}

func TestClassifierPredict(t *testing.T) {
	backend := cpu.New()
	model, err := NewClassifier(Architecture{InputSize: 4, OutputSize: 3}, 0, backend)
	require.NoError(t, err)

	input := tensor.Randn[float32](tensor.Shape{5, 4}, backend)
	pred := model.Predict(input)

	require.Equal(t, tensor.Shape{5}, pred.Shape())
	logProbs := model.Forward(input, Eval)
	for row := 0; row < 5; row++ {
		best := 0
		for col := 1; col < 3; col++ {
			if logProbs.At(row, col) > logProbs.At(row, best) {
				best = col
			}
		}
		assert.Equal(t, int64(best), pred.At(row))
	}
}

func TestClassifierSeededBuildReproduces(t *testing.T) {
	backend := cpu.New()
	arch := Architecture{InputSize: 8, OutputSize: 4, HiddenSizes: []int{6}}

	a, err := NewClassifierWithRand(arch, 0.5, backend, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	b, err := NewClassifierWithRand(arch, 0.5, backend, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	sa, sb := a.StateDict(), b.StateDict()
	for name, raw := range sa {
		require.Contains(t, sb, name)
		assert.Equal(t, raw.AsFloat32(), sb[name].AsFloat32())
	}

	// The same seed also reproduces the dropout masks in Train mode.
	input := tensor.Ones[float32](tensor.Shape{4, 8}, backend)
	assert.Equal(t, a.Forward(input, Train).Data(), b.Forward(input, Train).Data())
}

func TestClassifierDifferentSeedsDiffer(t *testing.T) {
	backend := cpu.New()
	arch := Architecture{InputSize: 8, OutputSize: 4}

	a, err := NewClassifierWithRand(arch, 0, backend, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	b, err := NewClassifierWithRand(arch, 0, backend, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	assert.NotEqual(t,
		a.StateDict()["output.weight"].AsFloat32(),
		b.StateDict()["output.weight"].AsFloat32())
}
