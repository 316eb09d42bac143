package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiln-ml/kiln/backend/cpu"
	"github.com/kiln-ml/kiln/internal/dataset"
	"github.com/kiln-ml/kiln/nn"
)

var evalFlags struct {
	dataDir    string
	checkpoint string
	batchSize  int
	maxSamples int
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a checkpoint on a test set",
	Long: `Load a checkpoint and report loss and accuracy on the MNIST
test split. The model is rebuilt from the architecture stored in the
checkpoint file.`,
	RunE: runEval,
}

func init() {
	f := evalCmd.Flags()
	f.StringVar(&evalFlags.dataDir, "data", "", "Directory holding MNIST IDX files")
	f.StringVar(&evalFlags.checkpoint, "checkpoint", "", "Checkpoint path (.kiln)")
	f.IntVar(&evalFlags.batchSize, "batch-size", 256, "Mini-batch size")
	f.IntVar(&evalFlags.maxSamples, "max-samples", 0, "Limit test samples (0 = all)")
	_ = evalCmd.MarkFlagRequired("checkpoint")
}

func runEval(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if evalFlags.dataDir == "" {
		return fmt.Errorf("--data is required")
	}

	backend := cpu.New()
	cp, err := nn.LoadCheckpoint(evalFlags.checkpoint, backend, nil)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	logger.Info("checkpoint loaded",
		zap.String("path", evalFlags.checkpoint),
		zap.String("architecture", cp.Model.Architecture().String()),
		zap.Int("epoch", cp.Epoch),
	)

	testSet, err := dataset.LoadMNIST(evalFlags.dataDir, false, evalFlags.maxSamples)
	if err != nil {
		return err
	}
	batches, err := dataset.Batches(testSet, evalFlags.batchSize, nil, backend)
	if err != nil {
		return err
	}

	criterion := nn.NewNLLLoss[*cpu.Backend]()
	var totalLoss float64
	correct, seen := 0, 0
	for _, batch := range batches {
		logProbs := cp.Model.Forward(batch.Images, nn.Eval)
		loss := criterion.Forward(logProbs, batch.Labels)
		totalLoss += float64(loss.Item()) * float64(batch.Size)

		pred := logProbs.Argmax().Data()
		want := batch.Labels.Data()
		for i := range pred {
			if pred[i] == want[i] {
				correct++
			}
		}
		seen += batch.Size
	}

	logger.Info("evaluation complete",
		zap.Int("samples", seen),
		zap.Float64("loss", totalLoss/float64(seen)),
		zap.Float64("accuracy", float64(correct)/float64(seen)),
	)
	return nil
}
