// Package main provides the Kiln ML Framework CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "v0.3.0"

var verbose bool

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Train, evaluate and inspect feed-forward classifiers",
	Long: `Kiln trains feed-forward image classifiers and manages their
checkpoints in the .kiln format.

Available commands:
  train    Train a classifier and save checkpoints
  eval     Evaluate a checkpoint on a test set
  inspect  Print the metadata of a .kiln file
  version  Show version`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Kiln ML Framework %s\n", version)
	},
}

// newLogger builds a console logger; --verbose lowers the level to debug.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
