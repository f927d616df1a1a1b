package settingtype

import (
	"errors"
	"fmt"
)

// ErrInvalidType reports a malformed type string or an invalid option list.
// Use errors.Is to detect it; the wrapped message carries the detail.
var ErrInvalidType = errors.New("invalid setting type")

func errInvalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidType, fmt.Sprintf(format, args...))
}
