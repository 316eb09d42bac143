// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training neural networks.
//
// Optimizers consume the gradient map produced by autodiff.Backward and
// update model parameters in place.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model, _ := nn.NewClassifier(arch, 0.2, backend)
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.01}, backend)
//
//	grads := autodiff.Backward(loss.Raw(), backend)
//	optimizer.Step(grads)
//	optimizer.ZeroGrad()
package optim
