package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"digitflow/internal/logging"
	"digitflow/internal/model"
	"digitflow/internal/services"
)

var (
	// ErrInvalidImage reports prediction input that does not decode to an image.
	ErrInvalidImage = fmt.Errorf("invalid image: %w", services.ErrImageDecode)
	// ErrModelNotLoaded is returned by Predict before the first successful load.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrReloadFailure marks a reload that kept the previous model.
	ErrReloadFailure = services.ErrReloadFailure
)

// Loader returns the current artifact. model.ArtifactStore satisfies it.
type Loader interface {
	Load(ctx context.Context) (*model.Artifact, error)
}

// Prediction is the result of one classification.
type Prediction struct {
	Label         int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	ModelVersion  string    `json:"model_version"`
}

// Status describes the model currently being served.
type Status struct {
	Loaded       bool           `json:"loaded"`
	ModelVersion string         `json:"model_version,omitempty"`
	LoadedAt     time.Time      `json:"loaded_at,omitzero"`
	Metadata     model.Metadata `json:"metadata"`
	Reloads      int64          `json:"reloads"`
}

// Observer receives prediction and reload events. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObservePrediction(label int)
	ObservePredictionError()
	ObserveReload(ok bool)
}

type loadedModel struct {
	network  *model.Network
	version  string
	metadata model.Metadata
	loadedAt time.Time
}

// Service is safe for concurrent Predict and Reload calls.
type Service struct {
	loader   Loader
	logger   *slog.Logger
	observer Observer

	current atomic.Pointer[loadedModel]
	reloads atomic.Int64
	mu      sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver attaches metrics hooks.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService builds a Service that loads models through loader. Call Reload
// before serving predictions.
func NewService(loader Loader, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		loader: loader,
		logger: logging.NewComponentLogger(logger, "inference"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict decodes image bytes and classifies them with the model that is
// current at the moment of the call.
func (s *Service) Predict(ctx context.Context, data []byte) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	current := s.current.Load()
	if current == nil {
		s.observePredictionError()
		return Prediction{}, ErrModelNotLoaded
	}
	input, err := model.DecodeImage(data)
	if err != nil {
		s.observePredictionError()
		return Prediction{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	label, probs, err := current.network.Predict(input)
	if err != nil {
		s.observePredictionError()
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if s.observer != nil {
		s.observer.ObservePrediction(label)
	}
	s.logger.Debug("prediction served",
		logging.Int("label", label),
		logging.String(logging.FieldModelVersion, current.version),
	)
	return Prediction{Label: label, Probabilities: probs, ModelVersion: current.version}, nil
}

// Reload loads the artifact and publishes it. In-flight predictions finish
// on the model they started with. On failure the previous model stays live
// and the error wraps ErrReloadFailure.
func (s *Service) Reload(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	art, err := s.loader.Load(ctx)
	if err != nil {
		s.observeReload(false)
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "model reload failed", "model_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the model artifact and dataset paths"),
			logging.String(logging.FieldImpact, "previous model remains in service"),
		)
		return s.Status(), services.Wrap(ErrReloadFailure, "", "reload", "load artifact", err)
	}
	previous := s.current.Swap(&loadedModel{
		network:  art.Network,
		version:  art.Version,
		metadata: art.Metadata,
		loadedAt: time.Now().UTC(),
	})
	s.reloads.Add(1)
	s.observeReload(true)

	attrs := []any{
		logging.String(logging.FieldModelVersion, art.Version),
		logging.Duration("duration", time.Since(started)),
		logging.String(logging.FieldEventType, "model_reloaded"),
	}
	if previous != nil {
		attrs = append(attrs, logging.String("previous_version", previous.version))
	}
	s.logger.Info("model loaded", attrs...)
	return s.Status(), nil
}

// Status reports the model currently being served.
func (s *Service) Status() Status {
	st := Status{Reloads: s.reloads.Load()}
	if current := s.current.Load(); current != nil {
		st.Loaded = true
		st.ModelVersion = current.version
		st.LoadedAt = current.loadedAt
		st.Metadata = current.metadata
	}
	return st
}

func (s *Service) observePredictionError() {
	if s.observer != nil {
		s.observer.ObservePredictionError()
	}
}

func (s *Service) observeReload(ok bool) {
	if s.observer != nil {
		s.observer.ObserveReload(ok)
	}
}
