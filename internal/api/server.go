package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"digitflow/internal/corrections"
	"digitflow/internal/inference"
	"digitflow/internal/logging"
	"digitflow/internal/retrain"
	"digitflow/internal/services"
)

//go:embed static/index.html
var indexPage []byte

const defaultMaxUploadBytes = 4 << 20

// Predictor is the inference surface the server needs. *inference.Service
// satisfies it.
type Predictor interface {
	Predict(ctx context.Context, data []byte) (inference.Prediction, error)
	Reload(ctx context.Context) (inference.Status, error)
	Status() inference.Status
}

// Submitter persists a correction image and its row. *corrections.ImageStore
// satisfies it.
type Submitter interface {
	Submit(ctx context.Context, data []byte, trueLabel, predictedLabel int) (corrections.Submission, error)
}

// SchedulerView reports scheduler state. *retrain.Scheduler satisfies it.
type SchedulerView interface {
	Status() retrain.SchedulerStatus
}

// CorrectionObserver is notified for every saved correction.
type CorrectionObserver interface {
	ObserveCorrection()
}

// Options wires the server to its collaborators. Inference is required;
// everything else is optional.
type Options struct {
	Bind           string
	Token          string
	DriftThreshold int
	MaxUploadBytes int64

	Inference   Predictor
	Corrections CorrectionReader
	Submitter   Submitter
	Scheduler   SchedulerView
	Observer    CorrectionObserver
	Metrics     http.Handler
	Logger      *slog.Logger
}

// Server is the HTTP front end for predictions, corrections, and reloads.
type Server struct {
	opts        Options
	logger      *slog.Logger
	corrections *CorrectionService
	handler     http.Handler

	listener net.Listener
	server   *http.Server
}

// NewServer builds the route table. It does not listen until Start.
func NewServer(opts Options) (*Server, error) {
	if opts.Inference == nil {
		return nil, errors.New("api server requires an inference service")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "api-server"),
	}
	if opts.Corrections != nil {
		s.corrections = NewCorrectionService(opts.Corrections)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/correct", s.handleCorrect)
	mux.HandleFunc("/reload", authMiddleware(opts.Token, s.handleReload))
	mux.HandleFunc("/api/corrections", authMiddleware(opts.Token, s.handleCorrections))
	mux.HandleFunc("/api/status", s.handleStatus)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	s.handler = s.withRequestID(mux)

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler exposes the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured bind address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.opts.Token != ""),
	)
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("duration", time.Since(started)),
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Status: "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	data, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prediction, err := s.opts.Inference.Predict(r.Context(), data)
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrInvalidImage):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, inference.ErrModelNotLoaded):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			logging.WithContext(r.Context(), s.logger).Error("prediction failed", logging.Error(err))
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, PredictResponse{
		Prediction:    prediction.Label,
		Probabilities: prediction.Probabilities,
		ModelVersion:  prediction.ModelVersion,
	})
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Submitter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "correction store unavailable")
		return
	}
	data, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trueLabel, err := formLabel(r, "true_label")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	predictedLabel, err := formLabel(r, "predicted_label")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := logging.WithContext(r.Context(), s.logger)
	sub, err := s.opts.Submitter.Submit(r.Context(), data, trueLabel, predictedLabel)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.ErrorWithContext(logger, "correction not saved", "correction_save_failed",
			logging.Error(err),
			logging.Int("true_label", trueLabel),
			logging.Int("predicted_label", predictedLabel),
			logging.String(logging.FieldErrorHint, "check corrections_dir and database_path permissions"),
			logging.String(logging.FieldImpact, "the submitted correction was discarded"),
		)
		s.writeError(w, http.StatusInternalServerError, "correction not saved: "+err.Error())
		return
	}
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveCorrection()
	}
	logger.Info("correction saved",
		logging.Int64(logging.FieldCorrectionID, sub.ID),
		logging.String(logging.FieldImageRef, sub.ImageRef),
		logging.Int("true_label", trueLabel),
		logging.Int("predicted_label", predictedLabel),
		logging.String(logging.FieldEventType, "correction_saved"),
	)
	s.writeJSON(w, http.StatusOK, CorrectResponse{
		Status:   "success",
		Message:  "Correction saved",
		ID:       sub.ID,
		ImageRef: sub.ImageRef,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, err := s.opts.Inference.Reload(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ReloadResponse{
		Status:       "success",
		Message:      "Model reloaded",
		ModelVersion: st.ModelVersion,
	})
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filter, err := corrections.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.corrections.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, CorrectionListResponse{Filter: filter.String(), Items: items})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	payload := StatusResponse{
		Model:          FromModelStatus(s.opts.Inference.Status()),
		DriftThreshold: s.opts.DriftThreshold,
	}
	stats, err := s.corrections.Stats(r.Context())
	if err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "correction stats unavailable", "status_stats_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database_path"),
			logging.String(logging.FieldImpact, "status omits correction counts"),
		)
	}
	payload.Corrections = stats
	if s.opts.Scheduler != nil {
		payload.Retrain = FromSchedulerStatus(s.opts.Scheduler.Status())
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}
	return data, nil
}

func formLabel(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", name, raw)
	}
	if err := corrections.ValidateLabel(name, value); err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
