// Copyright 2026 Kiln ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization provides the public API for reading and writing
// .kiln checkpoint files.
//
// Most users load checkpoints through nn.LoadCheckpoint; this package is
// for tooling that inspects or produces .kiln files directly.
//
// Example:
//
//	reader, err := serialization.NewReader("model.kiln")
//	if errors.Is(err, serialization.ErrNotFound) {
//	    // no checkpoint yet
//	}
package serialization

import (
	"github.com/kiln-ml/kiln/internal/serialization"
)

// Sentinel errors, tested with errors.Is.
var (
	// ErrNotFound reports a missing checkpoint file or tensor name.
	ErrNotFound = serialization.ErrNotFound

	// ErrCorruptRecord reports a damaged or unreadable checkpoint:
	// bad magic, unsupported version, truncation, garbled header or
	// checksum mismatch.
	ErrCorruptRecord = serialization.ErrCorruptRecord
)

// OptimizerTensorPrefix marks stored tensors holding optimizer state
// rather than model parameters.
const OptimizerTensorPrefix = serialization.OptimizerTensorPrefix

// Header is the metadata block of a .kiln file.
type Header = serialization.Header

// ArchitectureMeta describes the stored model's layer sizes.
type ArchitectureMeta = serialization.ArchitectureMeta

// CheckpointMeta carries training progress stored with a checkpoint.
type CheckpointMeta = serialization.CheckpointMeta

// TensorMeta describes one stored tensor.
type TensorMeta = serialization.TensorMeta

// Writer writes a .kiln file atomically: the target path is only
// replaced once the file is fully written, checksummed and synced.
type Writer = serialization.Writer

// NewWriter creates a writer targeting path. Call WriteStateDict then
// Commit; Close without Commit discards the pending file.
func NewWriter(path string) (*Writer, error) {
	return serialization.NewWriter(path)
}

// Reader reads a .kiln file, validating structure and checksum up front.
type Reader = serialization.Reader

// ReaderOptions controls validation behavior.
type ReaderOptions = serialization.ReaderOptions

// NewReader opens a .kiln file for reading. A missing file wraps
// ErrNotFound; a damaged one wraps ErrCorruptRecord.
func NewReader(path string) (*Reader, error) {
	return serialization.NewReader(path)
}

// NewReaderWithOptions opens a .kiln file with explicit options.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	return serialization.NewReaderWithOptions(path, opts)
}

// ComputeChecksum returns the SHA-256 digest of the tensor data section.
func ComputeChecksum(data []byte) [32]byte {
	return serialization.ComputeChecksum(data)
}
