// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/kiln-ml/kiln/internal/nn"
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Module is the common interface for all neural network modules.
// Every Forward call takes an explicit Mode; there is no ambient
// train/eval switch on the module itself.
type Module[B tensor.Backend] = nn.Module[B]

// Mode selects between deterministic inference and stochastic training
// behavior for a forward pass.
type Mode = nn.Mode

// Forward pass modes.
const (
	// Eval disables dropout and other stochastic behavior.
	Eval Mode = nn.Eval
	// Train enables dropout.
	Train Mode = nn.Train
)

// ErrShapeMismatch is the sentinel for disagreements between expected and
// actual tensor shapes, including architecture mismatches when loading
// saved parameters. Test with errors.Is.
var ErrShapeMismatch = nn.ErrShapeMismatch

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with Xavier initialization.
//
// Example:
//
//	backend := cpu.New()
//	layer := nn.NewLinear(784, 128, backend)
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// NewLinearWithRand is NewLinear with an explicit random source for the
// weight initialization. A nil rng falls back to the shared global source.
func NewLinearWithRand[B tensor.Backend](inFeatures, outFeatures int, backend B, rng *rand.Rand) *Linear[B] {
	return nn.NewLinearWithRand(inFeatures, outFeatures, backend, rng)
}

// ReLU represents the Rectified Linear Unit activation function.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a new ReLU activation layer.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// LogSoftmax normalizes the last dimension to log-probabilities.
type LogSoftmax[B tensor.Backend] = nn.LogSoftmax[B]

// NewLogSoftmax creates a new LogSoftmax layer.
func NewLogSoftmax[B tensor.Backend]() *LogSoftmax[B] {
	return nn.NewLogSoftmax[B]()
}

// Dropout zeroes activations with the configured probability in Train
// mode and is the identity in Eval mode.
type Dropout[B tensor.Backend] = nn.Dropout[B]

// NewDropout creates a dropout layer. rate must be in [0, 1).
//
// Example:
//
//	drop := nn.NewDropout[*cpu.Backend](0.5)
//	out := drop.Forward(x, nn.Train)
func NewDropout[B tensor.Backend](rate float64) *Dropout[B] {
	return nn.NewDropout[B](rate)
}

// NewDropoutWithRand is NewDropout with an explicit random source for
// mask sampling, making Train-mode forwards reproducible under a seeded
// rng. A nil rng falls back to the shared global source.
func NewDropoutWithRand[B tensor.Backend](rate float64, rng *rand.Rand) *Dropout[B] {
	return nn.NewDropoutWithRand[B](rate, rng)
}

// Loss functions

// NLLLoss is the negative log-likelihood loss over log-probabilities.
type NLLLoss[B tensor.Backend] = nn.NLLLoss[B]

// NewNLLLoss creates a new NLL loss with mean reduction.
//
// Example:
//
//	criterion := nn.NewNLLLoss[*cpu.Backend]()
//	loss := criterion.Forward(logProbs, labels)
func NewNLLLoss[B tensor.Backend]() *NLLLoss[B] {
	return nn.NewNLLLoss[B]()
}

// Classifier

// Architecture describes a classifier's layer sizes.
type Architecture = nn.Architecture

// Classifier is a feed-forward classifier: a stack of Linear+ReLU+Dropout
// hidden layers followed by a Linear output layer and LogSoftmax.
type Classifier[B tensor.Backend] = nn.Classifier[B]

// NewClassifier builds a classifier for the given architecture.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model, err := nn.NewClassifier(nn.Architecture{
//	    InputSize:   784,
//	    OutputSize:  10,
//	    HiddenSizes: []int{512, 256, 128},
//	}, 0.2, backend)
func NewClassifier[B tensor.Backend](arch Architecture, dropoutRate float64, backend B) (*Classifier[B], error) {
	return nn.NewClassifier(arch, dropoutRate, backend)
}

// NewClassifierWithRand is NewClassifier with an explicit random source
// driving weight initialization and dropout mask sampling, so a seeded
// rng makes construction and Train-mode forwards reproducible. A nil
// rng falls back to the shared global source.
func NewClassifierWithRand[B tensor.Backend](arch Architecture, dropoutRate float64, backend B, rng *rand.Rand) (*Classifier[B], error) {
	return nn.NewClassifierWithRand(arch, dropoutRate, backend, rng)
}

// Checkpoints

// Checkpoint is a complete training snapshot: model parameters, optional
// optimizer state and training progress.
type Checkpoint[B tensor.Backend] = nn.Checkpoint[B]

// OptimizerState is implemented by optimizers that can snapshot their state.
type OptimizerState = nn.OptimizerState

// LoadCheckpoint reads a checkpoint and rebuilds the model from the
// architecture stored in the file.
//
// Example:
//
//	cp, err := nn.LoadCheckpoint("model.kiln", backend, nil)
//	predictions := cp.Model.Predict(images)
func LoadCheckpoint[B tensor.Backend](path string, backend B, optimizer OptimizerState) (*Checkpoint[B], error) {
	return nn.LoadCheckpoint(path, backend, optimizer)
}

// LoadStateInto restores saved parameters into an existing model. The
// stored architecture must match the model's exactly; a disagreement
// returns an error wrapping ErrShapeMismatch before any parameter is
// touched.
func LoadStateInto[B tensor.Backend](path string, model *Classifier[B]) error {
	return nn.LoadStateInto(path, model)
}

// Initialization functions

// Xavier initializes a tensor using Xavier/Glorot uniform initialization.
// Values are drawn from rng; a nil rng uses the shared global source.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, backend, rng)
}

// Zeros initializes a tensor with zeros (for biases).
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Zeros(shape, backend)
}

// Ones initializes a tensor with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Ones(shape, backend)
}

// Randn initializes a tensor with random values from N(0, 1).
func Randn[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Randn(shape, backend)
}
