package retrain

import (
	"errors"

	"digitflow/internal/services"
)

var (
	// ErrStoreUnavailable is treated as zero corrections.
	ErrStoreUnavailable = services.ErrStoreUnavailable
	// ErrTrainingFailure aborts the cycle before anything is persisted.
	ErrTrainingFailure = services.ErrTrainingFailure
	// ErrArtifactWrite aborts the cycle before reload and marking.
	ErrArtifactWrite = services.ErrArtifactWrite
	// ErrReloadFailure means the artifact was saved but marking was withheld.
	ErrReloadFailure = services.ErrReloadFailure
	// ErrCycleInProgress is returned when a trigger overlaps a running cycle.
	ErrCycleInProgress = errors.New("retraining cycle already in progress")
)
