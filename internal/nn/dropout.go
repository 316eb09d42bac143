package nn

import (
	"fmt"
	"math/rand"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Dropout randomly zeroes elements of the input during training.
//
// Uses inverted dropout: surviving elements are scaled by 1/(1-rate) at
// training time, so the expected activation matches inference and the
// Eval path is a pure identity. In Eval mode the input passes through
// unchanged, which makes inference deterministic.
//
// The mask is applied with an element-wise multiply, so when the backend
// records gradients the masked positions correctly receive zero gradient.
type Dropout[B tensor.Backend] struct {
	rate float64
	rng  *rand.Rand
}

// NewDropout creates a Dropout module with the given drop probability.
// Rate must be in [0, 1); a rate of 0 makes Dropout the identity in both
// modes. Panics on an out-of-range rate. Masks are drawn from the shared
// global source; use NewDropoutWithRand for reproducible masks.
func NewDropout[B tensor.Backend](rate float64) *Dropout[B] {
	return NewDropoutWithRand[B](rate, nil)
}

// NewDropoutWithRand is NewDropout with an explicit random source for
// mask sampling. A nil rng falls back to the shared global source.
func NewDropoutWithRand[B tensor.Backend](rate float64, rng *rand.Rand) *Dropout[B] {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("nn.NewDropout: rate must be in [0, 1), got %v", rate))
	}
	return &Dropout[B]{rate: rate, rng: rng}
}

// SetRand replaces the module's random source. A nil rng reverts to the
// shared global source.
func (d *Dropout[B]) SetRand(rng *rand.Rand) {
	d.rng = rng
}

// Rate returns the drop probability.
func (d *Dropout[B]) Rate() float64 {
	return d.rate
}

// Forward applies dropout in Train mode and is the identity in Eval mode.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B] {
	if mode == Eval || d.rate == 0 {
		return input
	}

	backend := input.Backend()
	maskRaw, err := tensor.NewRaw(input.Shape(), tensor.Float32, backend.Device())
	if err != nil {
		panic(err)
	}

	//nolint:gosec // G404: dropout sampling is not security-critical
	randFloat := rand.Float64
	if d.rng != nil {
		randFloat = d.rng.Float64
	}

	scale := float32(1.0 / (1.0 - d.rate))
	maskData := maskRaw.AsFloat32()
	for i := range maskData {
		if randFloat() >= d.rate {
			maskData[i] = scale
		}
	}

	mask := tensor.New[float32, B](maskRaw, backend)
	return input.Mul(mask)
}

// Parameters returns nil; Dropout has no trainable parameters.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map. The rate is architecture, not state.
func (d *Dropout[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for the stateless Dropout.
func (d *Dropout[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}
