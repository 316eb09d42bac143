// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/kiln-ml/kiln/internal/tensor"
)

// RawTensor is the low-level tensor representation: a flat byte buffer
// plus shape, strides and runtime type information. Backends operate on
// RawTensor; the typed Tensor wrapper adds compile-time element types.
type RawTensor = tensor.RawTensor

// NewRaw creates a new raw tensor with the given shape, dtype and device.
//
// This is a low-level function. Most users should use high-level creation
// functions instead.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}
