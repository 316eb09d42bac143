package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kiln-ml/kiln/internal/tensor"
)

const kilnVersion = "0.3.0"

// Writer writes checkpoints in .kiln format atomically.
//
// The data is written to a temporary file in the target directory; the
// final path only appears after Commit renames it in place. A crash or
// error mid-write leaves at most a stray temp file, never a truncated
// checkpoint under the real name.
//
// Usage:
//
//	w, err := serialization.NewWriter(path)
//	if err != nil { ... }
//	defer w.Close()
//	if err := w.WriteStateDict(stateDict, header); err != nil { ... }
//	return w.Commit()
type Writer struct {
	file      *os.File
	path      string
	tmpPath   string
	committed bool
	closed    bool
}

// NewWriter creates a writer targeting path. The temporary file lives in
// the same directory so the final rename stays within one filesystem.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	file, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	return &Writer{
		file:    file,
		path:    path,
		tmpPath: file.Name(),
	}, nil
}

// WriteStateDict writes the state dictionary and header to the temp file.
//
// Tensor names are written in sorted order, so identical state produces
// byte-identical files (modulo CreatedAt). Header.Tensors, FormatVersion,
// KilnVersion and CreatedAt are filled in here.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.RawTensor, header Header) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	tensorOrder := make([]string, 0, len(stateDict))
	for name := range stateDict {
		tensorOrder = append(tensorOrder, name)
	}
	sort.Strings(tensorOrder)

	header.FormatVersion = FormatVersion
	header.KilnVersion = kilnVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	var currentOffset int64
	header.Tensors = make([]TensorMeta, 0, len(stateDict))
	for _, name := range tensorOrder {
		raw := stateDict[name]
		size := int64(raw.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape()),
			Offset: currentOffset,
			Size:   size,
		})
		currentOffset += size
	}

	tensorData := make([]byte, 0, currentOffset)
	for _, name := range tensorOrder {
		tensorData = append(tensorData, stateDict[name].Data()...)
	}
	checksum := ComputeChecksum(tensorData)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	fixedHeader := make([]byte, FixedHeaderSize)
	copy(fixedHeader[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	for _, name := range tensorOrder {
		if strings.HasPrefix(name, OptimizerTensorPrefix) {
			flags |= FlagHasOptimizer
			break
		}
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)

	binary.LittleEndian.PutUint64(fixedHeader[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixedHeader[24:32], uint64(len(tensorData)))
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.file.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	currentPos := int64(FixedHeaderSize) + int64(len(headerJSON))
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	if padding > 0 {
		if _, err := w.file.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := w.file.Write(tensorData); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}

	return nil
}

// Commit flushes the temp file and renames it to the target path.
// After Commit the writer is closed.
func (w *Writer) Commit() error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	if err := w.file.Sync(); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.closed = true
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	w.closed = true
	w.committed = true
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

// Close discards the temp file if Commit has not run. Safe to defer
// alongside Commit; after a successful Commit it is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.file.Close()
	_ = os.Remove(w.tmpPath)
	return err
}
