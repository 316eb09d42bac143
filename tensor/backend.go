// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/kiln-ml/kiln/internal/tensor"
)

// Backend defines the interface that all compute backends must implement.
// Backends never modify their input tensors in place: every operation
// allocates a fresh result, which keeps recorded computation graphs valid.
//
// Implementations:
//   - cpu.Backend: pure Go kernels with BLAS-backed matrix multiplication
//   - autodiff.Backend: decorator adding gradient tracking to any backend
type Backend = tensor.Backend
