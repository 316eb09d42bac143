package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiln-ml/kiln/serialization"
)

var inspectFlags struct {
	skipChecksum bool
	tensors      bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file.kiln]",
	Short: "Print the metadata of a .kiln file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.BoolVar(&inspectFlags.skipChecksum, "skip-checksum", false, "Skip checksum validation")
	f.BoolVar(&inspectFlags.tensors, "tensors", false, "List every stored tensor")
}

func runInspect(cmd *cobra.Command, args []string) error {
	reader, err := serialization.NewReaderWithOptions(args[0], serialization.ReaderOptions{
		SkipChecksumValidation: inspectFlags.skipChecksum,
	})
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	fmt.Printf("File:         %s\n", args[0])
	fmt.Printf("Format:       v%d (kiln %s)\n", header.FormatVersion, header.KilnVersion)
	fmt.Printf("Model type:   %s\n", header.ModelType)
	if !header.CreatedAt.IsZero() {
		fmt.Printf("Created:      %s\n", header.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if header.Architecture != nil {
		a := header.Architecture
		fmt.Printf("Architecture: input=%d output=%d hidden=%v dropout=%.2f\n",
			a.InputSize, a.OutputSize, a.HiddenSizes, a.DropoutRate)
	}
	if header.Checkpoint != nil {
		c := header.Checkpoint
		fmt.Printf("Progress:     epoch=%d step=%d loss=%.6f\n", c.Epoch, c.Step, c.Loss)
		if c.OptimizerType != "" {
			fmt.Printf("Optimizer:    %s %v\n", c.OptimizerType, c.OptimizerConfig)
		}
	}
	fmt.Printf("Optim state:  %t\n", reader.HasOptimizerState())

	names := reader.TensorNames()
	var totalBytes int64
	for _, name := range names {
		info, err := reader.TensorInfo(name)
		if err != nil {
			return err
		}
		totalBytes += info.Size
	}
	fmt.Printf("Tensors:      %d (%d bytes)\n", len(names), totalBytes)

	if inspectFlags.tensors {
		for _, name := range names {
			info, err := reader.TensorInfo(name)
			if err != nil {
				return err
			}
			fmt.Printf("  %-24s %-8s %v\n", name, info.DType, info.Shape)
		}
	}
	return nil
}
