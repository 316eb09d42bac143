package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiln-ml/kiln/autodiff"
	"github.com/kiln-ml/kiln/backend/cpu"
	"github.com/kiln-ml/kiln/internal/dataset"
	"github.com/kiln-ml/kiln/internal/train"
	"github.com/kiln-ml/kiln/nn"
	"github.com/kiln-ml/kiln/optim"
)

var trainFlags struct {
	dataDir       string
	synthetic     bool
	hidden        []int
	dropout       float64
	optimizerName string
	lr            float64
	momentum      float64
	epochs        int
	batchSize     int
	maxSamples    int
	seed          int64
	checkpoint    string
	resume        string
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a classifier and save checkpoints",
	Long: `Train a feed-forward classifier with SGD or Adam.

Reads MNIST IDX files from --data, or generates a separable synthetic
dataset with --synthetic for smoke runs. Saves a checkpoint after each
epoch when --checkpoint is set; --resume continues from a saved one.`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainFlags.dataDir, "data", "", "Directory holding MNIST IDX files")
	f.BoolVar(&trainFlags.synthetic, "synthetic", false, "Train on a generated synthetic dataset")
	f.IntSliceVar(&trainFlags.hidden, "hidden", []int{512, 256, 128}, "Hidden layer sizes")
	f.Float64Var(&trainFlags.dropout, "dropout", 0.2, "Dropout rate in [0, 1)")
	f.StringVar(&trainFlags.optimizerName, "optimizer", "sgd", "Optimizer: sgd or adam")
	f.Float64Var(&trainFlags.lr, "lr", 0.01, "Learning rate")
	f.Float64Var(&trainFlags.momentum, "momentum", 0.9, "SGD momentum")
	f.IntVar(&trainFlags.epochs, "epochs", 10, "Training epochs")
	f.IntVar(&trainFlags.batchSize, "batch-size", 64, "Mini-batch size")
	f.IntVar(&trainFlags.maxSamples, "max-samples", 0, "Limit training samples (0 = all)")
	f.Int64Var(&trainFlags.seed, "seed", 0, "Seed for init, dropout and shuffling (0 = from clock)")
	f.StringVar(&trainFlags.checkpoint, "checkpoint", "", "Checkpoint output path (.kiln)")
	f.StringVar(&trainFlags.resume, "resume", "", "Checkpoint to resume from")
}

func runTrain(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	trainSet, valSet, err := loadTrainingData()
	if err != nil {
		return err
	}

	backend := autodiff.New(cpu.New())

	var rng *rand.Rand
	if trainFlags.seed != 0 {
		rng = rand.New(rand.NewSource(trainFlags.seed)) //nolint:gosec // G404: reproducibility, not security
	}

	var (
		model   *nn.Classifier[*autodiff.Backend[*cpu.Backend]]
		state   train.State
		resumed *nn.Checkpoint[*autodiff.Backend[*cpu.Backend]]
	)
	if trainFlags.resume != "" {
		resumed, err = nn.LoadCheckpoint(trainFlags.resume, backend, nil)
		if err != nil {
			return fmt.Errorf("failed to resume from %s: %w", trainFlags.resume, err)
		}
		model = resumed.Model
		model.SetRand(rng)
		state = train.State{Epoch: resumed.Epoch, Step: resumed.Step}
		logger.Info("resumed from checkpoint",
			zap.String("path", trainFlags.resume),
			zap.Int("epoch", resumed.Epoch),
			zap.Int64("step", resumed.Step),
		)
	} else {
		arch := nn.Architecture{
			InputSize:   trainSet.Features,
			OutputSize:  trainSet.Classes,
			HiddenSizes: trainFlags.hidden,
		}
		model, err = nn.NewClassifierWithRand(arch, trainFlags.dropout, backend, rng)
		if err != nil {
			return err
		}
	}

	optimizer, err := buildOptimizer(model, backend)
	if err != nil {
		return err
	}

	if resumed != nil && resumed.HasOptimizerState() {
		if st, ok := optimizer.(nn.OptimizerState); ok {
			if err := resumed.InstallOptimizerState(st); err != nil {
				return fmt.Errorf("failed to restore optimizer state: %w", err)
			}
			logger.Info("restored optimizer state", zap.String("optimizer", st.Name()))
		}
	}

	trainer := train.New(model, optimizer, backend, logger)
	_, err = trainer.Fit(trainSet, valSet, train.FitConfig{
		Epochs:         trainFlags.epochs,
		BatchSize:      trainFlags.batchSize,
		Seed:           trainFlags.seed,
		CheckpointPath: trainFlags.checkpoint,
	}, state)
	return err
}

func loadTrainingData() (trainSet, valSet *dataset.Dataset, err error) {
	if trainFlags.synthetic {
		rng := rand.New(rand.NewSource(trainFlags.seed + 1)) //nolint:gosec // G404: toy data generation
		d := dataset.Synthetic(4096, 64, 10, rng)
		trainSet, valSet = d.Split(0.1)
		return trainSet, valSet, nil
	}
	if trainFlags.dataDir == "" {
		return nil, nil, fmt.Errorf("either --data or --synthetic is required")
	}
	d, err := dataset.LoadMNIST(trainFlags.dataDir, true, trainFlags.maxSamples)
	if err != nil {
		return nil, nil, err
	}
	trainSet, valSet = d.Split(0.1)
	return trainSet, valSet, nil
}

func buildOptimizer(
	model *nn.Classifier[*autodiff.Backend[*cpu.Backend]],
	backend *autodiff.Backend[*cpu.Backend],
) (optim.Optimizer, error) {
	switch trainFlags.optimizerName {
	case "sgd":
		return optim.NewSGD(model.Parameters(), optim.SGDConfig{
			LR:       trainFlags.lr,
			Momentum: trainFlags.momentum,
		}, backend), nil
	case "adam":
		return optim.NewAdam(model.Parameters(), optim.AdamConfig{
			LR: trainFlags.lr,
		}, backend), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q (want sgd or adam)", trainFlags.optimizerName)
	}
}
