// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers and checkpointing.
//
// # Overview
//
// This package contains:
//   - Layers: Linear, ReLU, Dropout, LogSoftmax
//   - Models: Classifier with a configurable hidden layer stack
//   - Loss functions: NLLLoss
//   - Checkpoints: Checkpoint, LoadCheckpoint, LoadStateInto
//   - Initialization: Xavier, Zeros, Ones, Randn
//
// # Basic Usage
//
//	import (
//	    "github.com/kiln-ml/kiln/autodiff"
//	    "github.com/kiln-ml/kiln/backend/cpu"
//	    "github.com/kiln-ml/kiln/nn"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//
//	    model, err := nn.NewClassifier(nn.Architecture{
//	        InputSize:   784,
//	        OutputSize:  10,
//	        HiddenSizes: []int{512, 256, 128},
//	    }, 0.2, backend)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    logProbs := model.Forward(images, nn.Train)
//	}
//
// # Modes
//
// Forward takes an explicit Mode. nn.Eval gives deterministic output;
// nn.Train enables dropout. There is no hidden mode flag on the model,
// so the same model value can serve training and inference concurrently.
//
// # Checkpoints
//
// Checkpoint.Save writes model parameters, architecture and optional
// optimizer state to a single checksummed file, atomically. The file is
// self-describing: LoadCheckpoint rebuilds the model without the caller
// restating layer sizes.
package nn
