package optim

import (
	"fmt"
	"math"

	"github.com/kiln-ml/kiln/internal/nn"
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2014).
//
// Update rule per parameter element:
//
//	m = beta1*m + (1-beta1)*grad
//	v = beta2*v + (1-beta2)*grad²
//	mHat = m / (1 - beta1^t)
//	vHat = v / (1 - beta2^t)
//	param -= lr * mHat / (sqrt(vHat) + eps)
type Adam[B tensor.Backend] struct {
	params  []*nn.Parameter[B]
	lr      float64
	beta1   float64
	beta2   float64
	eps     float64
	step    int64
	moments map[*nn.Parameter[B]]*adamMoments
	backend B
}

type adamMoments struct {
	m *tensor.RawTensor
	v *tensor.RawTensor
}

// AdamConfig holds Adam hyperparameters. Zero values take the usual
// defaults: lr 0.001, beta1 0.9, beta2 0.999, eps 1e-8.
type AdamConfig struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Beta1 == 0 {
		config.Beta1 = 0.9
	}
	if config.Beta2 == 0 {
		config.Beta2 = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params:  params,
		lr:      config.LR,
		beta1:   config.Beta1,
		beta2:   config.Beta2,
		eps:     config.Eps,
		moments: make(map[*nn.Parameter[B]]*adamMoments),
		backend: backend,
	}
}

// Step applies one Adam update to every parameter that has a gradient.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.step++

	bias1 := 1 - math.Pow(a.beta1, float64(a.step))
	bias2 := 1 - math.Pow(a.beta2, float64(a.step))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		moments := a.momentsFor(param)
		mData := moments.m.AsFloat32()
		vData := moments.v.AsFloat32()
		paramData := param.Tensor().Raw().AsFloat32()
		gradData := grad.AsFloat32()

		for i := range paramData {
			g := float64(gradData[i])
			m := a.beta1*float64(mData[i]) + (1-a.beta1)*g
			v := a.beta2*float64(vData[i]) + (1-a.beta2)*g*g
			mData[i] = float32(m)
			vData[i] = float32(v)

			mHat := m / bias1
			vHat := v / bias2
			paramData[i] -= float32(a.lr * mHat / (math.Sqrt(vHat) + a.eps))
		}
	}
}

func (a *Adam[B]) momentsFor(param *nn.Parameter[B]) *adamMoments {
	if mo, ok := a.moments[param]; ok {
		return mo
	}

	shape := param.Tensor().Shape()
	m, err := tensor.NewRaw(shape, tensor.Float32, a.backend.Device())
	if err != nil {
		panic(err)
	}
	v, err := tensor.NewRaw(shape, tensor.Float32, a.backend.Device())
	if err != nil {
		panic(err)
	}

	mo := &adamMoments{m: m, v: v}
	a.moments[param] = mo
	return mo
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// Name returns "Adam".
func (a *Adam[B]) Name() string {
	return "Adam"
}

// LR returns the current learning rate.
func (a *Adam[B]) LR() float64 {
	return a.lr
}

// SetLR updates the learning rate, for scheduling.
func (a *Adam[B]) SetLR(lr float64) {
	a.lr = lr
}

// StateDict exports first and second moments keyed "m.{index}" and
// "v.{index}", plus the step counter as a single-element int64 tensor.
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)

	for i, param := range a.params {
		if mo, ok := a.moments[param]; ok {
			stateDict[fmt.Sprintf("m.%d", i)] = mo.m
			stateDict[fmt.Sprintf("v.%d", i)] = mo.v
		}
	}

	stepRaw, err := tensor.NewRaw(tensor.Shape{1}, tensor.Int64, a.backend.Device())
	if err != nil {
		panic(err)
	}
	stepRaw.AsInt64()[0] = a.step
	stateDict["step"] = stepRaw

	return stateDict
}

// LoadStateDict restores moments and the step counter.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if stepRaw, ok := stateDict["step"]; ok {
		if stepRaw.DType() != tensor.Int64 || stepRaw.NumElements() != 1 {
			return fmt.Errorf("invalid step tensor")
		}
		a.step = stepRaw.AsInt64()[0]
	}

	a.moments = make(map[*nn.Parameter[B]]*adamMoments)
	for i, param := range a.params {
		m, okM := stateDict[fmt.Sprintf("m.%d", i)]
		v, okV := stateDict[fmt.Sprintf("v.%d", i)]
		if !okM && !okV {
			continue
		}
		if !okM || !okV {
			return fmt.Errorf("parameter %d has partial moment state", i)
		}
		want := param.Tensor().Shape()
		if !m.Shape().Equal(want) || !v.Shape().Equal(want) {
			return fmt.Errorf("moment shape mismatch for parameter %d: expected %v, got m=%v v=%v",
				i, want, m.Shape(), v.Shape())
		}
		a.moments[param] = &adamMoments{m: m, v: v}
	}
	return nil
}
