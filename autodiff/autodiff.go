// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// It implements reverse-mode automatic differentiation (backpropagation)
// using a gradient tape. Wrapping any backend with New adds gradient
// tracking to every operation performed through it.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base)
//
//	logProbs := model.Forward(images, nn.Train)
//	loss := criterion.Forward(logProbs, labels)
//
//	grads := autodiff.Backward(loss.Raw(), backend)
package autodiff

import (
	"github.com/kiln-ml/kiln/internal/autodiff"
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Backend is the autodiff-enabled backend decorator.
type Backend[B tensor.Backend] = autodiff.Backend[B]

// New creates a new autodiff backend wrapping the given backend.
// The tape starts out recording.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base)
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape. The tape is not recording
// until StartRecording is called.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// Gradients maps each tensor in the recorded graph to its gradient.
type Gradients = autodiff.Gradients

// Backward computes gradients of loss with respect to every tensor on
// the tape, then clears the tape.
func Backward[B tensor.Backend](loss *tensor.RawTensor, backend *Backend[B]) Gradients {
	return autodiff.Backward(loss, backend)
}
