package fit

import (
	"errors"
	"fmt"
)

var (
	// ErrNoViableFit means no candidate in any generation reached a finite score.
	ErrNoViableFit = errors.New("no viable spiral fit")

	// ErrInvalidInput means the configuration or arguments cannot be optimized.
	ErrInvalidInput = errors.New("invalid fit input")
)

// RangeError reports a search range that is empty or not finite.
type RangeError struct {
	Index        int
	Lower, Upper float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("search range %d is invalid: [%g, %g]", e.Index, e.Lower, e.Upper)
}

// Is makes RangeError match ErrInvalidInput.
func (e *RangeError) Is(target error) bool {
	return target == ErrInvalidInput
}
