package api

import "digitflow/internal/retrain"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	Prediction    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	ModelVersion  string    `json:"model_version"`
}

// CorrectResponse is the body of a successful POST /correct.
type CorrectResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ID       int64  `json:"id"`
	ImageRef string `json:"image_ref"`
}

// MessageResponse carries a status/message pair for simple endpoints.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ReloadResponse is the body of POST /reload.
type ReloadResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ModelVersion string `json:"model_version,omitempty"`
}

// Correction describes a correction row in a transport-friendly format.
type Correction struct {
	ID             int64  `json:"id"`
	ImageRef       string `json:"image_ref"`
	TrueLabel      int    `json:"true_label"`
	PredictedLabel int    `json:"predicted_label"`
	Processed      bool   `json:"processed"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CorrectionListResponse wraps correction list results.
type CorrectionListResponse struct {
	Filter string       `json:"filter"`
	Items  []Correction `json:"items"`
}

// CorrectionStats summarizes the correction table.
type CorrectionStats struct {
	Total       int  `json:"total"`
	Unprocessed int  `json:"unprocessed"`
	Processed   int  `json:"processed"`
	Available   bool `json:"available"`
}

// ModelStatus describes the model currently being served.
type ModelStatus struct {
	Loaded      bool   `json:"loaded"`
	Version     string `json:"version,omitempty"`
	LoadedAt    string `json:"loaded_at,omitempty"`
	TrainedAt   string `json:"trained_at,omitempty"`
	Samples     int    `json:"samples"`
	Corrections int    `json:"corrections"`
	Bootstrap   bool   `json:"bootstrap"`
	Reloads     int64  `json:"reloads"`
}

// RetrainStatus mirrors the scheduler state when the server runs one.
type RetrainStatus struct {
	Running bool             `json:"running"`
	NextRun string           `json:"next_run,omitempty"`
	Skipped int64            `json:"skipped"`
	Last    *retrain.Outcome `json:"last,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Model          ModelStatus     `json:"model"`
	Corrections    CorrectionStats `json:"corrections"`
	DriftThreshold int             `json:"drift_threshold"`
	Retrain        *RetrainStatus  `json:"retrain,omitempty"`
}
