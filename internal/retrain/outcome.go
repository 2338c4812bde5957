package retrain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"digitflow/internal/fileutil"
	"digitflow/internal/services"
)

// Stage is one state of the retraining cycle.
type Stage string

const (
	StageIdle       Stage = "IDLE"
	StageChecking   Stage = "CHECKING"
	StageSkip       Stage = "SKIP"
	StageRetraining Stage = "RETRAINING"
	StageReloading  Stage = "RELOADING"
	StageMarking    Stage = "MARKING"
)

// Result is the terminal classification of a cycle.
type Result string

const (
	ResultSkipped   Result = "skipped"
	ResultCompleted Result = "completed"
	ResultFailed    Result = "failed"
)

// Outcome records what one cycle did. Stage is the last stage entered, which
// for a failed cycle is where it stopped.
type Outcome struct {
	RunID            string    `json:"run_id"`
	Result           Result    `json:"result"`
	Stage            Stage     `json:"stage"`
	Reason           string    `json:"reason,omitempty"`
	Threshold        int       `json:"threshold"`
	Unprocessed      int       `json:"unprocessed"`
	Decoded          int       `json:"decoded"`
	DecodeFailures   []int64   `json:"decode_failures,omitempty"`
	Marked           int64     `json:"marked"`
	ModelVersion     string    `json:"model_version,omitempty"`
	StoreUnavailable bool      `json:"store_unavailable,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Error            string    `json:"error,omitempty"`
	ErrorKind        string    `json:"error_kind,omitempty"`

	Err error `json:"-"`
}

// Duration is the wall time the cycle took.
func (o Outcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

func (o *Outcome) fail(stage Stage, err error) {
	o.Result = ResultFailed
	o.Stage = stage
	o.Err = err
	o.Error = err.Error()
	o.ErrorKind = services.Kind(err)
}

// SaveOutcome atomically writes o as JSON so other processes can report the
// last cycle.
func SaveOutcome(path string, o Outcome) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}

// LoadOutcome reads the outcome written by SaveOutcome. The boolean is false
// when no cycle has been recorded yet.
func LoadOutcome(path string) (Outcome, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Outcome{}, false, nil
		}
		return Outcome{}, false, fmt.Errorf("read outcome: %w", err)
	}
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return Outcome{}, false, fmt.Errorf("decode outcome %s: %w", path, err)
	}
	return o, true, nil
}
