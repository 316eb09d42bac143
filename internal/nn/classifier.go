package nn

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Architecture describes the layer sizes of a Classifier. It is pure
// configuration: two classifiers built from equal Architectures have
// identically shaped parameters, which is what makes checkpoints
// self-describing.
type Architecture struct {
	InputSize   int   `json:"input_size"`
	OutputSize  int   `json:"output_size"`
	HiddenSizes []int `json:"hidden_sizes"`
}

// Validate reports whether the architecture is buildable: all sizes must
// be positive. An empty HiddenSizes is valid and yields a linear model
// with a log-softmax output.
func (a Architecture) Validate() error {
	if a.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", a.InputSize)
	}
	if a.OutputSize <= 0 {
		return fmt.Errorf("output size must be positive, got %d", a.OutputSize)
	}
	for i, size := range a.HiddenSizes {
		if size <= 0 {
			return fmt.Errorf("hidden layer %d size must be positive, got %d", i, size)
		}
	}
	return nil
}

// Equal reports whether two architectures describe the same layer sizes.
func (a Architecture) Equal(other Architecture) bool {
	if a.InputSize != other.InputSize || a.OutputSize != other.OutputSize {
		return false
	}
	if len(a.HiddenSizes) != len(other.HiddenSizes) {
		return false
	}
	for i, size := range a.HiddenSizes {
		if size != other.HiddenSizes[i] {
			return false
		}
	}
	return true
}

// String returns a compact description like "784-512-256-128-10".
func (a Architecture) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", a.InputSize)
	for _, size := range a.HiddenSizes {
		fmt.Fprintf(&sb, "-%d", size)
	}
	fmt.Fprintf(&sb, "-%d", a.OutputSize)
	return sb.String()
}

// Classifier is a feed-forward classifier with a configurable stack of
// hidden layers. Each hidden layer is Linear → ReLU → Dropout; the output
// layer is Linear → LogSoftmax, so Forward returns log-probabilities.
//
// Example:
//
//	arch := nn.Architecture{InputSize: 784, OutputSize: 10, HiddenSizes: []int{512, 256, 128}}
//	model, err := nn.NewClassifier(arch, 0.2, backend)
//	logProbs := model.Forward(batch, nn.Train)
type Classifier[B tensor.Backend] struct {
	arch        Architecture
	dropoutRate float64
	hidden      []*Linear[B]
	output      *Linear[B]
	relu        *ReLU[B]
	dropout     *Dropout[B]
	logSoftmax  *LogSoftmax[B]
	backend     B
}

// NewClassifier builds a classifier for the given architecture.
// DropoutRate applies after every hidden activation and must be in
// [0, 1); pass 0 to disable dropout entirely.
func NewClassifier[B tensor.Backend](arch Architecture, dropoutRate float64, backend B) (*Classifier[B], error) {
	return NewClassifierWithRand(arch, dropoutRate, backend, nil)
}

// NewClassifierWithRand is NewClassifier with an explicit random source
// driving both weight initialization and dropout mask sampling, so a
// seeded rng makes construction and Train-mode forwards reproducible.
// A nil rng falls back to the shared global source.
func NewClassifierWithRand[B tensor.Backend](arch Architecture, dropoutRate float64, backend B, rng *rand.Rand) (*Classifier[B], error) {
	if err := arch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid architecture: %w", err)
	}
	if dropoutRate < 0 || dropoutRate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0, 1), got %v", dropoutRate)
	}

	hidden := make([]*Linear[B], len(arch.HiddenSizes))
	prev := arch.InputSize
	for i, size := range arch.HiddenSizes {
		hidden[i] = NewLinearWithRand(prev, size, backend, rng)
		prev = size
	}

	return &Classifier[B]{
		arch:        arch,
		dropoutRate: dropoutRate,
		hidden:      hidden,
		output:      NewLinearWithRand(prev, arch.OutputSize, backend, rng),
		relu:        NewReLU[B](),
		dropout:     NewDropoutWithRand[B](dropoutRate, rng),
		logSoftmax:  NewLogSoftmax[B](),
		backend:     backend,
	}, nil
}

// SetRand replaces the random source used for dropout mask sampling.
// Useful after LoadCheckpoint, which rebuilds the model without one.
// A nil rng reverts to the shared global source.
func (c *Classifier[B]) SetRand(rng *rand.Rand) {
	c.dropout.SetRand(rng)
}

// Architecture returns the classifier's layer configuration.
func (c *Classifier[B]) Architecture() Architecture {
	return c.arch
}

// DropoutRate returns the configured drop probability.
func (c *Classifier[B]) DropoutRate() float64 {
	return c.dropoutRate
}

// Forward runs the network and returns log-probabilities with shape
// [batch, OutputSize]. In Train mode dropout is sampled after each
// hidden activation; in Eval mode the pass is deterministic.
//
// Input shape: [batch, InputSize]. Panics with an error wrapping
// ErrShapeMismatch on a misshapen input.
func (c *Classifier[B]) Forward(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(shapeMismatchf("Classifier.Forward: expected 2D input [batch, features], got shape %v", shape))
	}
	if shape[1] != c.arch.InputSize {
		panic(shapeMismatchf("Classifier.Forward: expected input with %d features, got %d", c.arch.InputSize, shape[1]))
	}

	h := input
	for _, layer := range c.hidden {
		h = layer.Forward(h, mode)
		h = c.relu.Forward(h, mode)
		h = c.dropout.Forward(h, mode)
	}

	logits := c.output.Forward(h, mode)
	return c.logSoftmax.Forward(logits, mode)
}

// Predict returns the most likely class index for each row of the input.
// Always runs in Eval mode.
func (c *Classifier[B]) Predict(input *tensor.Tensor[float32, B]) *tensor.Tensor[int64, B] {
	return c.Forward(input, Eval).Argmax()
}

// Parameters returns all trainable parameters, hidden layers first, then
// the output layer.
func (c *Classifier[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 2*(len(c.hidden)+1))
	for _, layer := range c.hidden {
		params = append(params, layer.Parameters()...)
	}
	return append(params, c.output.Parameters()...)
}

// StateDict returns all parameters keyed by layer:
//
//	hidden_0.weight, hidden_0.bias, ..., output.weight, output.bias
func (c *Classifier[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, 2*(len(c.hidden)+1))
	for i, layer := range c.hidden {
		for key, raw := range layer.StateDict() {
			stateDict[fmt.Sprintf("hidden_%d.%s", i, key)] = raw
		}
	}
	for key, raw := range c.output.StateDict() {
		stateDict["output."+key] = raw
	}
	return stateDict
}

// LoadStateDict copies all parameter values from a state dictionary.
//
// Every expected key must be present and correctly shaped; unknown keys
// are an error. Shape disagreements wrap ErrShapeMismatch. On error the
// model may be partially updated, so callers should discard it.
func (c *Classifier[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	expected := 2 * (len(c.hidden) + 1)
	if len(stateDict) != expected {
		return shapeMismatchf("state dict has %d tensors, model expects %d", len(stateDict), expected)
	}

	for i, layer := range c.hidden {
		prefix := fmt.Sprintf("hidden_%d.", i)
		if err := layer.LoadStateDict(subDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("hidden_%d: %w", i, err)
		}
	}
	if err := c.output.LoadStateDict(subDict(stateDict, "output.")); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

// subDict extracts the entries under prefix with the prefix stripped.
func subDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor, 2)
	for key, raw := range stateDict {
		if strings.HasPrefix(key, prefix) {
			sub[strings.TrimPrefix(key, prefix)] = raw
		}
	}
	return sub
}
