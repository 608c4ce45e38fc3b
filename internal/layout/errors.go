package layout

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch matches any *ShapeMismatchError through errors.Is.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeMismatchError reports an input buffer that does not match the
// configured topology. The frame is unusable; the process is not.
type ShapeMismatchError struct {
	WantWidth, WantHeight int
	GotWidth, GotHeight   int
	WantBytes, GotBytes   int
}

func (e *ShapeMismatchError) Error() string {
	if e.GotWidth == 0 && e.GotHeight == 0 {
		return fmt.Sprintf("shape mismatch: want %dx%d (%d bytes), got %d bytes",
			e.WantWidth, e.WantHeight, e.WantBytes, e.GotBytes)
	}
	return fmt.Sprintf("shape mismatch: want %dx%d (%d bytes), got %dx%d (%d bytes)",
		e.WantWidth, e.WantHeight, e.WantBytes, e.GotWidth, e.GotHeight, e.GotBytes)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}
