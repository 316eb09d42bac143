package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Reader reads checkpoints from .kiln format.
//
// Failures map onto the two sentinel errors: a missing file surfaces as
// ErrNotFound, and any structural damage (bad magic, truncation, header
// damage, checksum mismatch) surfaces as ErrCorruptRecord.
type Reader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64
	dataSize   int64
	checksum   [32]byte
	closed     bool
}

// ReaderOptions configures Reader behavior.
type ReaderOptions struct {
	// SkipChecksumValidation skips the full-data checksum pass on open.
	// Faster, but damage in the data section goes undetected.
	SkipChecksumValidation bool
}

// NewReader opens a .kiln file with full validation.
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, ReaderOptions{})
}

// NewReaderWithOptions opens a .kiln file with custom options.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: checkpoint paths are caller-provided
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &Reader{file: file}
	if err := r.parseHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() < r.dataOffset+r.dataSize {
		_ = file.Close()
		return nil, corruptf("file truncated: %d bytes, data section needs %d", info.Size(), r.dataOffset+r.dataSize)
	}

	if err := r.validateTensorMetas(); err != nil {
		_ = file.Close()
		return nil, err
	}

	if !opts.SkipChecksumValidation {
		if err := r.validateChecksum(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return r, nil
}

func (r *Reader) parseHeader() error {
	fixedHeader := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixedHeader); err != nil {
		return corruptf("failed to read fixed header: %v", err)
	}

	if string(fixedHeader[0:4]) != MagicBytes {
		return fmt.Errorf("%w: got %q", ErrInvalidMagic, fixedHeader[0:4])
	}

	version := binary.LittleEndian.Uint32(fixedHeader[4:8])
	if version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	r.flags = binary.LittleEndian.Uint32(fixedHeader[8:12])
	headerSize := binary.LittleEndian.Uint64(fixedHeader[16:24])
	dataSize := binary.LittleEndian.Uint64(fixedHeader[24:32])
	copy(r.checksum[:], fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return corruptf("failed to read header JSON: %v", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return corruptf("failed to parse header JSON: %v", err)
	}

	currentPos := int64(FixedHeaderSize) + int64(headerSize)
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	r.dataOffset = currentPos + padding
	r.dataSize = int64(dataSize)

	return nil
}

// validateTensorMetas checks that every tensor record stays inside the
// data section and that declared sizes match shape and dtype.
func (r *Reader) validateTensorMetas() error {
	for _, meta := range r.header.Tensors {
		if meta.Offset < 0 || meta.Size < 0 {
			return corruptf("tensor %q: negative offset or size", meta.Name)
		}
		if meta.Offset+meta.Size > r.dataSize {
			return fmt.Errorf("%w: tensor %q at [%d, %d) in a %d-byte data section",
				ErrOutOfBounds, meta.Name, meta.Offset, meta.Offset+meta.Size, r.dataSize)
		}

		dtype, ok := stringToDtype(meta.DType)
		if !ok {
			return corruptf("tensor %q: unsupported dtype %q", meta.Name, meta.DType)
		}
		shape := tensor.Shape(meta.Shape)
		if err := shape.Validate(); err != nil {
			return corruptf("tensor %q: invalid shape %v", meta.Name, meta.Shape)
		}
		if want := int64(shape.NumElements() * dtype.Size()); want != meta.Size {
			return corruptf("tensor %q: size %d does not match shape %v of %s", meta.Name, meta.Size, meta.Shape, meta.DType)
		}
	}
	return nil
}

func (r *Reader) validateChecksum() error {
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to tensor data: %w", err)
	}
	computed, err := ComputeChecksumReader(io.LimitReader(r.file, r.dataSize))
	if err != nil {
		return corruptf("failed to read tensor data for checksum: %v", err)
	}
	return ValidateChecksum(computed, r.checksum)
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	return r.header
}

// HasOptimizerState reports whether the file carries optimizer state
// tensors, per the FlagHasOptimizer bit in the fixed header.
func (r *Reader) HasOptimizerState() bool {
	return r.flags&FlagHasOptimizer != 0
}

// Metadata returns the custom metadata map.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames lists all tensor names in header order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns the metadata for one tensor.
// Returns an error wrapping ErrNotFound for an unknown name.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("%w: tensor %q", ErrNotFound, name)
}

// LoadTensor reads one tensor into a freshly allocated RawTensor.
func (r *Reader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	dtype, _ := stringToDtype(meta.DType)
	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, device)
	if err != nil {
		return nil, corruptf("tensor %q: %v", name, err)
	}

	if _, err := r.file.Seek(r.dataOffset+meta.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to tensor %q: %w", name, err)
	}
	if _, err := io.ReadFull(r.file, raw.Data()); err != nil {
		return nil, corruptf("failed to read tensor %q: %v", name, err)
	}

	return raw, nil
}

// ReadStateDict reads all tensors into a state dictionary.
func (r *Reader) ReadStateDict(device tensor.Device) (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name, device)
		if err != nil {
			return nil, err
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
