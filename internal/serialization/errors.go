package serialization

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two failure classes callers branch on:
// a checkpoint that is absent, and a checkpoint that exists but cannot
// be trusted. All structural failures wrap ErrCorruptRecord, so a single
// errors.Is covers bad magic, truncation, checksum and header damage.
var (
	// ErrNotFound reports a missing checkpoint file or a tensor name
	// absent from the header.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorruptRecord reports a file that exists but fails structural
	// or integrity validation.
	ErrCorruptRecord = errors.New("corrupt checkpoint record")
)

// Specific corruption causes. Each wraps ErrCorruptRecord.
var (
	ErrInvalidMagic       = fmt.Errorf("%w: invalid magic bytes", ErrCorruptRecord)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported format version", ErrCorruptRecord)
	ErrChecksumMismatch   = fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
	ErrHeaderTooLarge     = fmt.Errorf("%w: header exceeds maximum size", ErrCorruptRecord)
	ErrOutOfBounds        = fmt.Errorf("%w: tensor extends beyond data section", ErrCorruptRecord)
)

// corruptf builds an error wrapping ErrCorruptRecord with detail.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptRecord, fmt.Sprintf(format, args...))
}
