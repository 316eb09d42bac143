package nn

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch reports that a tensor's shape disagrees with what a
// module expects. It is returned (wrapped) by LoadStateDict and carried
// by the panic raised when Forward receives a misshapen input, so both
// paths are testable with errors.Is.
var ErrShapeMismatch = errors.New("shape mismatch")

// shapeMismatchf builds an error wrapping ErrShapeMismatch.
func shapeMismatchf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}
