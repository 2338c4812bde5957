package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers shared by the correction store, model, inference, and
// retraining packages. Packages wrap these with Wrap so callers can classify
// a failure with errors.Is regardless of where it surfaced.
var (
	ErrStoreUnavailable = errors.New("correction store unavailable")
	ErrImageDecode      = errors.New("image decode error")
	ErrTrainingFailure  = errors.New("training failure")
	ErrArtifactWrite    = errors.New("artifact write failure")
	ErrReloadFailure    = errors.New("reload failure")
	ErrValidation       = errors.New("validation error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		if err == nil {
			return errors.New(detail)
		}
		return fmt.Errorf("%s: %w", detail, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error onto a stable, lowercase label used by metrics and
// notifications. Unclassified errors report "unknown"; nil reports "".
// A reload failure wins over whatever marker its cause carries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReloadFailure):
		return "reload_failure"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrImageDecode):
		return "image_decode"
	case errors.Is(err, ErrTrainingFailure):
		return "training_failure"
	case errors.Is(err, ErrArtifactWrite):
		return "artifact_write_failure"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
