// Package serialization implements the .kiln checkpoint file format.
//
// Layout:
//
//	0x00-0x03  magic bytes "KILN"
//	0x04-0x07  format version (uint32, little endian)
//	0x08-0x0B  flags (uint32)
//	0x0C-0x0F  reserved
//	0x10-0x17  JSON header size (uint64)
//	0x18-0x1F  tensor data size (uint64)
//	0x20-0x3F  SHA-256 checksum of the tensor data
//	0x40-...   JSON header, then padding to a 64-byte boundary, then
//	           tensor data in the order listed in the header
//
// The JSON header is self-describing: it carries the model architecture,
// training metadata and per-tensor name/dtype/shape/offset records, so a
// checkpoint can be loaded without reconstructing the model first.
//
// Writers are atomic: data goes to a temp file in the target directory
// and the final name appears only after a successful Commit, so readers
// never observe a half-written checkpoint.
package serialization

import (
	"time"

	"github.com/kiln-ml/kiln/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "KILN"
	FormatVersion   = 1  // v1: fixed header with SHA-256 checksum
	HeaderAlignment = 64 // tensor data aligned to 64 bytes
	FixedHeaderSize = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20

	// MaxHeaderSize bounds the JSON header so a corrupt size field
	// cannot trigger a huge allocation.
	MaxHeaderSize = 100 * 1024 * 1024
)

// Data type names used in the JSON header.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
	DTypeInt32   = "int32"
	DTypeInt64   = "int64"
	DTypeUint8   = "uint8"
)

// Flags for the .kiln format.
const (
	FlagHasOptimizer uint32 = 1 << 0 // optimizer state included
	FlagHasMetadata  uint32 = 1 << 1 // custom metadata included
)

// OptimizerTensorPrefix marks tensors holding optimizer state rather
// than model parameters. FlagHasOptimizer is set exactly when at least
// one stored tensor carries this prefix.
const OptimizerTensorPrefix = "optimizer."

// Header is the JSON header of a .kiln file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	KilnVersion   string            `json:"kiln_version"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`
	Architecture  *ArchitectureMeta `json:"architecture,omitempty"`
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// ArchitectureMeta records the layer configuration of the saved model,
// making the checkpoint self-describing: Load can rebuild the model from
// this block alone.
type ArchitectureMeta struct {
	InputSize   int     `json:"input_size"`
	OutputSize  int     `json:"output_size"`
	HiddenSizes []int   `json:"hidden_sizes"`
	DropoutRate float64 `json:"dropout_rate"`
}

// CheckpointMeta carries training state for resumption.
type CheckpointMeta struct {
	Epoch           int            `json:"epoch"`
	Step            int64          `json:"step"`
	Loss            float64        `json:"loss"`
	OptimizerType   string         `json:"optimizer_type,omitempty"`
	OptimizerConfig map[string]any `json:"optimizer_config,omitempty"`
	TrainingMeta    map[string]any `json:"training_meta,omitempty"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from start of the data section
	Size   int64  `json:"size"`
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	case tensor.Int32:
		return DTypeInt32
	case tensor.Int64:
		return DTypeInt64
	case tensor.Uint8:
		return DTypeUint8
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeInt64:
		return tensor.Int64, true
	case DTypeUint8:
		return tensor.Uint8, true
	default:
		return 0, false
	}
}
