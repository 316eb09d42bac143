// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// The backend implements every tensor.Backend operation with plain Go
// kernels, delegating matrix multiplication to gonum's BLAS bindings.
// NumPy-compatible broadcasting is supported for element-wise operations.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)
//
// The backend is stateless and safe for concurrent use. For training,
// wrap it with autodiff.New to record gradients.
package cpu
