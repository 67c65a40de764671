package iselapi

import (
	"errors"
	"fmt"
)

// ErrBailout is wrapped by every recoverable compilation failure: resource
// exhaustion and graphs or targets this compiler cannot handle.
var ErrBailout = errors.New("bailout")

// Bailoutf returns an error wrapping ErrBailout.
func Bailoutf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrBailout)
}
