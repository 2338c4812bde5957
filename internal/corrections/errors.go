package corrections

import (
	"fmt"

	"digitflow/internal/services"
)

var (
	// ErrStoreUnavailable reports that the correction database is absent or
	// cannot be opened.
	ErrStoreUnavailable = services.ErrStoreUnavailable
	// ErrInvalidLabel rejects labels outside 0-9.
	ErrInvalidLabel = fmt.Errorf("%w: label must be between 0 and 9", services.ErrValidation)
)

// ValidateLabel returns ErrInvalidLabel when label is not a digit.
func ValidateLabel(name string, label int) error {
	if label < 0 || label > 9 {
		return fmt.Errorf("%s %d: %w", name, label, ErrInvalidLabel)
	}
	return nil
}
