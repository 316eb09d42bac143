package nn

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiln-ml/kiln/internal/serialization"
	"github.com/kiln-ml/kiln/internal/tensor"
)

const optimizerPrefix = serialization.OptimizerTensorPrefix

// OptimizerState is implemented by optimizers that can snapshot their
// state. Declared here rather than in optim to avoid an import cycle.
type OptimizerState interface {
	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores optimizer state.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// Name returns the optimizer type, e.g. "SGD" or "Adam".
	Name() string

	// LR returns the current learning rate.
	LR() float64
}

// Checkpoint is a complete training snapshot: model parameters, optional
// optimizer state and training progress.
//
// The saved file records the model's Architecture, so LoadCheckpoint can
// rebuild the classifier without the caller restating the layer sizes.
//
// Example:
//
//	cp := &nn.Checkpoint[*cpu.Backend]{
//	    Model: model,
//	    Optimizer: optimizer,
//	    Epoch: 10,
//	    Step:  5000,
//	    Loss:  0.123,
//	}
//	err := cp.Save("checkpoint_epoch_10.kiln")
type Checkpoint[B tensor.Backend] struct {
	Model     *Classifier[B]
	Optimizer OptimizerState // may be nil
	Epoch     int
	Step      int64
	Loss      float64
	Metadata  map[string]any
	CreatedAt time.Time

	// optimizerState holds the raw optimizer tensors read from the file,
	// kept so InstallOptimizerState can restore them into an optimizer
	// built after the model was rebuilt.
	optimizerState map[string]*tensor.RawTensor
}

// Save writes the checkpoint atomically: the file appears at path only
// once fully written and checksummed.
func (c *Checkpoint[B]) Save(path string) error {
	if c.Model == nil {
		return fmt.Errorf("checkpoint has no model")
	}

	stateDict := c.Model.StateDict()
	if c.Optimizer != nil {
		for name, raw := range c.Optimizer.StateDict() {
			stateDict[optimizerPrefix+name] = raw
		}
	}

	arch := c.Model.Architecture()
	header := serialization.Header{
		ModelType: "Classifier",
		CreatedAt: c.CreatedAt,
		Architecture: &serialization.ArchitectureMeta{
			InputSize:   arch.InputSize,
			OutputSize:  arch.OutputSize,
			HiddenSizes: arch.HiddenSizes,
			DropoutRate: c.Model.DropoutRate(),
		},
		Checkpoint: &serialization.CheckpointMeta{
			Epoch:        c.Epoch,
			Step:         c.Step,
			Loss:         c.Loss,
			TrainingMeta: c.Metadata,
		},
	}
	if c.Optimizer != nil {
		header.Checkpoint.OptimizerType = c.Optimizer.Name()
		header.Checkpoint.OptimizerConfig = map[string]any{"lr": c.Optimizer.LR()}
	}

	writer, err := serialization.NewWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}
	defer func() { _ = writer.Close() }()

	if err := writer.WriteStateDict(stateDict, header); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return writer.Commit()
}

// LoadCheckpoint reads a checkpoint and rebuilds the model from the
// architecture stored in the file.
//
// If optimizer is non-nil and the file carries optimizer state, it is
// restored into the given optimizer, which must have been constructed
// for the rebuilt model's parameters. Usually the optimizer can only be
// built after the model exists, so callers pass nil here and call
// InstallOptimizerState on the returned checkpoint instead; saved
// optimizer state is retained either way.
//
// Errors follow the serialization taxonomy: a missing file wraps
// serialization.ErrNotFound, a damaged one serialization.ErrCorruptRecord.
func LoadCheckpoint[B tensor.Backend](path string, backend B, optimizer OptimizerState) (*Checkpoint[B], error) {
	reader, err := serialization.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header.Architecture == nil {
		return nil, fmt.Errorf("%w: no architecture block", serialization.ErrCorruptRecord)
	}

	arch := Architecture{
		InputSize:   header.Architecture.InputSize,
		OutputSize:  header.Architecture.OutputSize,
		HiddenSizes: header.Architecture.HiddenSizes,
	}
	model, err := NewClassifier(arch, header.Architecture.DropoutRate, backend)
	if err != nil {
		return nil, fmt.Errorf("%w: stored architecture invalid: %v", serialization.ErrCorruptRecord, err)
	}

	stateDict, err := reader.ReadStateDict(backend.Device())
	if err != nil {
		return nil, err
	}

	modelState := make(map[string]*tensor.RawTensor, len(stateDict))
	optimizerState := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if strings.HasPrefix(name, optimizerPrefix) {
			optimizerState[strings.TrimPrefix(name, optimizerPrefix)] = raw
		} else {
			modelState[name] = raw
		}
	}

	if err := model.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if optimizer != nil && len(optimizerState) > 0 {
		if err := optimizer.LoadStateDict(optimizerState); err != nil {
			return nil, fmt.Errorf("failed to load optimizer state: %w", err)
		}
	}

	cp := &Checkpoint[B]{
		Model:          model,
		Optimizer:      optimizer,
		CreatedAt:      header.CreatedAt,
		optimizerState: optimizerState,
	}
	if header.Checkpoint != nil {
		cp.Epoch = header.Checkpoint.Epoch
		cp.Step = header.Checkpoint.Step
		cp.Loss = header.Checkpoint.Loss
		cp.Metadata = header.Checkpoint.TrainingMeta
	}
	return cp, nil
}

// HasOptimizerState reports whether the loaded file carried optimizer
// tensors.
func (c *Checkpoint[B]) HasOptimizerState() bool {
	return len(c.optimizerState) > 0
}

// InstallOptimizerState restores the optimizer tensors retained by
// LoadCheckpoint into opt and attaches opt to the checkpoint. Call this
// once the optimizer has been constructed over the rebuilt model's
// parameters. A checkpoint saved without optimizer state leaves opt
// untouched.
func (c *Checkpoint[B]) InstallOptimizerState(opt OptimizerState) error {
	if opt == nil {
		return fmt.Errorf("nil optimizer")
	}
	if len(c.optimizerState) > 0 {
		if err := opt.LoadStateDict(c.optimizerState); err != nil {
			return fmt.Errorf("failed to load optimizer state: %w", err)
		}
	}
	c.Optimizer = opt
	return nil
}

// LoadStateInto restores saved parameters into an existing model.
//
// The stored architecture must match the model's exactly; a disagreement
// returns an error wrapping ErrShapeMismatch before any parameter is
// touched.
func LoadStateInto[B tensor.Backend](path string, model *Classifier[B]) error {
	reader, err := serialization.NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header.Architecture != nil {
		stored := Architecture{
			InputSize:   header.Architecture.InputSize,
			OutputSize:  header.Architecture.OutputSize,
			HiddenSizes: header.Architecture.HiddenSizes,
		}
		if !stored.Equal(model.Architecture()) {
			return shapeMismatchf("checkpoint architecture %s does not match model %s", stored, model.Architecture())
		}
	}

	stateDict, err := reader.ReadStateDict(model.backend.Device())
	if err != nil {
		return err
	}
	for name := range stateDict {
		if strings.HasPrefix(name, optimizerPrefix) {
			delete(stateDict, name)
		}
	}

	return model.LoadStateDict(stateDict)
}
