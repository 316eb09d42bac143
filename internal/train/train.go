// Package train runs the training and evaluation loops for classifiers.
//
// The loop state is an explicit value (State) passed into and returned
// from every step, which keeps progress serializable and makes resuming
// from a checkpoint a matter of restoring one struct.
package train

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/kiln-ml/kiln/internal/autodiff"
	"github.com/kiln-ml/kiln/internal/dataset"
	"github.com/kiln-ml/kiln/internal/nn"
	"github.com/kiln-ml/kiln/internal/optim"
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Trainer drives gradient descent for a classifier on an autodiff
// backend wrapping inner backend B.
type Trainer[B tensor.Backend] struct {
	model     *nn.Classifier[*autodiff.Backend[B]]
	optimizer optim.Optimizer
	backend   *autodiff.Backend[B]
	loss      *nn.NLLLoss[*autodiff.Backend[B]]
	logger    *zap.Logger
}

// New creates a trainer. A nil logger disables logging.
func New[B tensor.Backend](
	model *nn.Classifier[*autodiff.Backend[B]],
	optimizer optim.Optimizer,
	backend *autodiff.Backend[B],
	logger *zap.Logger,
) *Trainer[B] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer[B]{
		model:     model,
		optimizer: optimizer,
		backend:   backend,
		loss:      nn.NewNLLLoss[*autodiff.Backend[B]](),
		logger:    logger,
	}
}

// Model returns the trained model.
func (t *Trainer[B]) Model() *nn.Classifier[*autodiff.Backend[B]] {
	return t.model
}

// Step runs one optimization step on a batch and returns the advanced
// state. The input state is not mutated.
func (t *Trainer[B]) Step(state State, batch *dataset.Batch[*autodiff.Backend[B]]) State {
	t.backend.Tape().Clear()

	logProbs := t.model.Forward(batch.Images, nn.Train)
	loss := t.loss.Forward(logProbs, batch.Labels)
	lossValue := float64(loss.Item())

	grads := autodiff.Backward(loss.Raw(), t.backend)
	t.optimizer.Step(grads)
	t.optimizer.ZeroGrad()

	state.Step++
	state.RunningLoss += lossValue * float64(batch.Size)
	state.Seen += batch.Size
	state.Correct += countCorrect(logProbs, batch.Labels)
	return state
}

// Evaluate runs a deterministic Eval pass over the batches and returns
// aggregate loss and accuracy. Nothing is recorded on the tape.
func (t *Trainer[B]) Evaluate(batches []*dataset.Batch[*autodiff.Backend[B]]) Metrics {
	wasRecording := t.backend.Tape().IsRecording()
	t.backend.Tape().StopRecording()
	defer func() {
		if wasRecording {
			t.backend.Tape().StartRecording()
		}
	}()

	var m Metrics
	for _, batch := range batches {
		logProbs := t.model.Forward(batch.Images, nn.Eval)
		loss := t.loss.Forward(logProbs, batch.Labels)

		m.Loss += float64(loss.Item()) * float64(batch.Size)
		m.Accuracy += float64(countCorrect(logProbs, batch.Labels))
		m.Samples += batch.Size
	}
	if m.Samples > 0 {
		m.Loss /= float64(m.Samples)
		m.Accuracy /= float64(m.Samples)
	}
	return m
}

// FitConfig configures a full training run.
type FitConfig struct {
	Epochs          int
	BatchSize       int
	Seed            int64  // shuffle seed; 0 derives one from the clock
	CheckpointPath  string // empty disables checkpointing
	CheckpointEvery int    // epochs between checkpoints (default 1)
	LogEvery        int64  // steps between progress logs (default 100)
}

// Fit trains for the configured number of epochs, evaluating on valSet
// after each one. Returns the final state.
func (t *Trainer[B]) Fit(trainSet, valSet *dataset.Dataset, cfg FitConfig, resume State) (State, error) {
	if cfg.Epochs <= 0 {
		return resume, fmt.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return resume, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 1
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 100
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: shuffle order is not security-critical

	var valBatches []*dataset.Batch[*autodiff.Backend[B]]
	if valSet != nil {
		var err error
		valBatches, err = dataset.Batches(valSet, cfg.BatchSize, nil, t.backend)
		if err != nil {
			return resume, fmt.Errorf("failed to batch validation set: %w", err)
		}
	}

	state := resume
	t.logger.Info("training started",
		zap.String("architecture", t.model.Architecture().String()),
		zap.String("optimizer", t.optimizer.Name()),
		zap.Float64("lr", t.optimizer.LR()),
		zap.Int("epochs", cfg.Epochs),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("train_samples", trainSet.NumSamples()),
	)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		state = state.NextEpoch()
		epochStart := time.Now()

		batches, err := dataset.Batches(trainSet, cfg.BatchSize, rng, t.backend)
		if err != nil {
			return state, fmt.Errorf("failed to batch training set: %w", err)
		}

		for _, batch := range batches {
			state = t.Step(state, batch)
			if state.Step%cfg.LogEvery == 0 {
				t.logger.Debug("step",
					zap.Int64("step", state.Step),
					zap.Float64("avg_loss", state.AvgLoss()),
					zap.Float64("accuracy", state.Accuracy()),
				)
			}
		}

		fields := []zap.Field{
			zap.Int("epoch", state.Epoch),
			zap.Float64("train_loss", state.AvgLoss()),
			zap.Float64("train_accuracy", state.Accuracy()),
			zap.Duration("elapsed", time.Since(epochStart)),
		}
		if valSet != nil {
			metrics := t.Evaluate(valBatches)
			fields = append(fields,
				zap.Float64("val_loss", metrics.Loss),
				zap.Float64("val_accuracy", metrics.Accuracy),
			)
		}
		t.logger.Info("epoch complete", fields...)

		if cfg.CheckpointPath != "" && state.Epoch%cfg.CheckpointEvery == 0 {
			if err := t.saveCheckpoint(cfg.CheckpointPath, state); err != nil {
				return state, err
			}
		}
	}

	return state, nil
}

func (t *Trainer[B]) saveCheckpoint(path string, state State) error {
	optimizerState, _ := t.optimizer.(nn.OptimizerState)
	cp := &nn.Checkpoint[*autodiff.Backend[B]]{
		Model:     t.model,
		Optimizer: optimizerState,
		Epoch:     state.Epoch,
		Step:      state.Step,
		Loss:      state.AvgLoss(),
	}
	if err := cp.Save(path); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	t.logger.Info("checkpoint saved",
		zap.String("path", path),
		zap.Int("epoch", state.Epoch),
		zap.Int64("step", state.Step),
	)
	return nil
}

// countCorrect compares row-wise argmax of the log-probabilities with
// the targets.
func countCorrect[B tensor.Backend](logProbs *tensor.Tensor[float32, B], labels *tensor.Tensor[int64, B]) int {
	pred := logProbs.Argmax().Data()
	want := labels.Data()

	correct := 0
	for i := range pred {
		if pred[i] == want[i] {
			correct++
		}
	}
	return correct
}
