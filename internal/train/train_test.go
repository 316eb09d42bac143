package train

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kiln-ml/kiln/internal/autodiff"
	"github.com/kiln-ml/kiln/internal/backend/cpu"
	"github.com/kiln-ml/kiln/internal/dataset"
	"github.com/kiln-ml/kiln/internal/nn"
	"github.com/kiln-ml/kiln/internal/optim"
)

type cpuAutodiff = *autodiff.Backend[*cpu.Backend]

func newTestTrainer(t *testing.T, arch nn.Architecture, dropout float64, lr float64) (*Trainer[*cpu.Backend], cpuAutodiff) {
	t.Helper()

	backend := autodiff.New(cpu.New())
	model, err := nn.NewClassifier(arch, dropout, backend)
	require.NoError(t, err)

	sgd := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: lr}, backend)
	return New(model, sgd, backend, zaptest.NewLogger(t)), backend
}

func TestStepAdvancesState(t *testing.T) {
	trainer, backend := newTestTrainer(t, nn.Architecture{InputSize: 8, OutputSize: 2}, 0, 0.1)

	d := dataset.Synthetic(8, 8, 2, rand.New(rand.NewSource(1)))
	batches, err := dataset.Batches(d, 4, nil, backend)
	require.NoError(t, err)

	state := trainer.Step(State{Epoch: 1}, batches[0])
	assert.Equal(t, int64(1), state.Step)
	assert.Equal(t, 4, state.Seen)
	assert.Greater(t, state.RunningLoss, 0.0)

	state = trainer.Step(state, batches[1])
	assert.Equal(t, int64(2), state.Step)
	assert.Equal(t, 8, state.Seen)
}

func TestStepDoesNotMutateInput(t *testing.T) {
	trainer, backend := newTestTrainer(t, nn.Architecture{InputSize: 8, OutputSize: 2}, 0, 0.1)

	d := dataset.Synthetic(4, 8, 2, rand.New(rand.NewSource(1)))
	batches, err := dataset.Batches(d, 4, nil, backend)
	require.NoError(t, err)

	before := State{Epoch: 3, Step: 10}
	_ = trainer.Step(before, batches[0])
	assert.Equal(t, int64(10), before.Step)
	assert.Equal(t, 0, before.Seen)
}

func TestFitConverges(t *testing.T) {
	trainer, _ := newTestTrainer(t, nn.Architecture{InputSize: 16, OutputSize: 4, HiddenSizes: []int{32}}, 0, 0.5)

	d := dataset.Synthetic(128, 16, 4, rand.New(rand.NewSource(2)))
	trainSet, valSet := d.Split(0.25)

	state, err := trainer.Fit(trainSet, valSet, FitConfig{
		Epochs:    20,
		BatchSize: 16,
		Seed:      3,
	}, State{})
	require.NoError(t, err)

	assert.Equal(t, 20, state.Epoch)
	assert.Less(t, state.AvgLoss(), 0.1)
	assert.Greater(t, state.Accuracy(), 0.95)
}

func TestFitRejectsBadConfig(t *testing.T) {
	trainer, _ := newTestTrainer(t, nn.Architecture{InputSize: 4, OutputSize: 2}, 0, 0.1)
	d := dataset.Synthetic(8, 4, 2, rand.New(rand.NewSource(1)))

	_, err := trainer.Fit(d, nil, FitConfig{Epochs: 0, BatchSize: 4}, State{})
	assert.Error(t, err)
	_, err = trainer.Fit(d, nil, FitConfig{Epochs: 1, BatchSize: 0}, State{})
	assert.Error(t, err)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	// Dropout enabled: Eval mode must still give identical results.
	trainer, backend := newTestTrainer(t, nn.Architecture{InputSize: 16, OutputSize: 4, HiddenSizes: []int{32}}, 0.5, 0.1)

	d := dataset.Synthetic(32, 16, 4, rand.New(rand.NewSource(4)))
	batches, err := dataset.Batches(d, 8, nil, backend)
	require.NoError(t, err)

	first := trainer.Evaluate(batches)
	second := trainer.Evaluate(batches)

	assert.Equal(t, first, second)
	assert.Equal(t, 32, first.Samples)
}

func TestEvaluateLeavesTapeClean(t *testing.T) {
	trainer, backend := newTestTrainer(t, nn.Architecture{InputSize: 8, OutputSize: 2}, 0, 0.1)

	d := dataset.Synthetic(8, 8, 2, rand.New(rand.NewSource(5)))
	batches, err := dataset.Batches(d, 8, nil, backend)
	require.NoError(t, err)

	backend.Tape().Clear()
	_ = trainer.Evaluate(batches)
	assert.Equal(t, 0, backend.Tape().NumOps(), "evaluation must not record operations")
	assert.True(t, backend.Tape().IsRecording(), "recording should be restored after Evaluate")
}

func TestFitSavesAndResumes(t *testing.T) {
	arch := nn.Architecture{InputSize: 16, OutputSize: 4, HiddenSizes: []int{16}}
	trainer, _ := newTestTrainer(t, arch, 0, 0.5)

	d := dataset.Synthetic(64, 16, 4, rand.New(rand.NewSource(6)))
	path := filepath.Join(t.TempDir(), "model.kiln")

	state, err := trainer.Fit(d, nil, FitConfig{
		Epochs:         3,
		BatchSize:      16,
		Seed:           7,
		CheckpointPath: path,
	}, State{})
	require.NoError(t, err)

	backend := autodiff.New(cpu.New())
	cp, err := nn.LoadCheckpoint(path, backend, nil)
	require.NoError(t, err)
	assert.Equal(t, state.Epoch, cp.Epoch)
	assert.Equal(t, state.Step, cp.Step)
	assert.True(t, arch.Equal(cp.Model.Architecture()))

	// Resume: the restored state picks up where the run left off.
	sgd := optim.NewSGD(cp.Model.Parameters(), optim.SGDConfig{LR: 0.5}, backend)
	resumed := New(cp.Model, sgd, backend, nil)

	next, err := resumed.Fit(d, nil, FitConfig{Epochs: 1, BatchSize: 16, Seed: 8},
		State{Epoch: cp.Epoch, Step: cp.Step})
	require.NoError(t, err)
	assert.Equal(t, cp.Epoch+1, next.Epoch)
	assert.Greater(t, next.Step, cp.Step)
}
