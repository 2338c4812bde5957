package retrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"digitflow/internal/corrections"
	"digitflow/internal/logging"
	"digitflow/internal/model"
	"digitflow/internal/notifications"
	"digitflow/internal/services"
)

// CorrectionSource is the slice of the correction store a cycle needs.
type CorrectionSource interface {
	List(ctx context.Context, filter corrections.Filter) ([]corrections.Correction, error)
	MarkProcessed(ctx context.Context, ids []int64) (int64, error)
}

// SourceOpener connects to the correction store for one cycle. An error
// wrapping ErrStoreUnavailable means no store exists yet.
type SourceOpener func(ctx context.Context) (CorrectionSource, func() error, error)

// Trainer fits a fresh network on the reference set plus extra samples.
type Trainer interface {
	Retrain(ctx context.Context, extra []model.Sample) (*model.Network, model.Metadata, error)
}

// ArtifactWriter durably replaces the model artifact.
type ArtifactWriter interface {
	Save(ctx context.Context, net *model.Network, meta model.Metadata) (string, error)
}

// Reloader asks the inference service to pick up the saved artifact.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(ctx context.Context) error

// Reload calls f.
func (f ReloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

// Observer receives every finished cycle.
type Observer interface {
	ObserveCycle(Outcome)
}

// Orchestrator runs retraining cycles. The zero value is not usable; set at
// least Open, Trainer, Artifacts, and Reloader.
type Orchestrator struct {
	Open      SourceOpener
	Trainer   Trainer
	Artifacts ArtifactWriter
	Reloader  Reloader
	Notifier  notifications.Service
	Observer  Observer
	Logger    *slog.Logger

	// Threshold is the drift threshold: a cycle retrains only when the
	// unprocessed count is strictly greater.
	Threshold int

	// Decode defaults to model.DecodeFile.
	Decode func(path string) ([]float64, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// StoreOpener opens an existing correction database at path for each cycle.
func StoreOpener(path string) SourceOpener {
	return func(context.Context) (CorrectionSource, func() error, error) {
		store, err := corrections.OpenExisting(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}

// RunCycle performs one full traversal of the cycle and reports what
// happened. It never panics on collaborator errors; failures are recorded in
// the Outcome and logged with the stage they occurred in.
func (o *Orchestrator) RunCycle(ctx context.Context) (out Outcome) {
	out = Outcome{
		RunID:     uuid.NewString(),
		Stage:     StageIdle,
		Threshold: o.Threshold,
		StartedAt: o.now(),
	}
	ctx = services.WithRunID(ctx, out.RunID)
	defer func() {
		out.FinishedAt = o.now()
		o.finish(ctx, &out)
	}()

	// CHECKING
	stageCtx, logger := o.enter(ctx, &out, StageChecking)
	source, closeSource, items, err := o.check(stageCtx)
	if closeSource != nil {
		defer func() {
			if cerr := closeSource(); cerr != nil {
				logger.Warn("close correction store failed", logging.Error(cerr))
			}
		}()
	}
	if err != nil {
		out.StoreUnavailable = true
		out.Result = ResultSkipped
		out.Reason = "correction store unavailable"
		logging.WarnWithContext(logger, "correction store unavailable; treating as zero corrections", "retrain_store_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "corrections are stored on first submission"),
			logging.String(logging.FieldImpact, "no retraining this cycle"),
		)
		o.enter(ctx, &out, StageSkip)
		return out
	}
	out.Unprocessed = len(items)
	logger.Info("unprocessed corrections counted",
		logging.Int("unprocessed", out.Unprocessed),
		logging.Int("threshold", o.Threshold),
	)

	if out.Unprocessed <= o.Threshold {
		out.Result = ResultSkipped
		out.Reason = fmt.Sprintf("%d unprocessed corrections do not exceed threshold %d", out.Unprocessed, o.Threshold)
		_, skipLogger := o.enter(ctx, &out, StageSkip)
		skipLogger.Info("drift threshold not exceeded",
			logging.Int("unprocessed", out.Unprocessed),
			logging.Int("threshold", o.Threshold),
			logging.String(logging.FieldEventType, "retrain_skipped"),
		)
		return out
	}

	// RETRAINING
	stageCtx, logger = o.enter(ctx, &out, StageRetraining)
	ids := corrections.IDs(items)
	samples, failures := o.decode(stageCtx, items)
	out.Decoded = len(samples)
	out.DecodeFailures = failures

	net, meta, err := o.Trainer.Retrain(stageCtx, samples)
	if err != nil {
		if !errors.Is(err, ErrTrainingFailure) {
			err = services.Wrap(ErrTrainingFailure, string(StageRetraining), "train", "", err)
		}
		out.fail(StageRetraining, err)
		return out
	}
	meta.Corrections = len(samples)
	version, err := o.Artifacts.Save(stageCtx, net, meta)
	if err != nil {
		if !errors.Is(err, ErrArtifactWrite) {
			err = services.Wrap(ErrArtifactWrite, string(StageRetraining), "save artifact", "", err)
		}
		out.fail(StageRetraining, err)
		return out
	}
	out.ModelVersion = version
	logger.Info("retrained model saved",
		logging.String(logging.FieldModelVersion, version),
		logging.Int("samples", meta.Samples),
		logging.Int("corrections", len(samples)),
		logging.Int("decode_failures", len(failures)),
	)

	// RELOADING
	stageCtx, logger = o.enter(ctx, &out, StageReloading)
	if err := o.Reloader.Reload(stageCtx); err != nil {
		if !errors.Is(err, ErrReloadFailure) {
			err = services.Wrap(ErrReloadFailure, string(StageReloading), "reload", "", err)
		}
		out.fail(StageReloading, err)
		return out
	}
	logger.Info("inference service reloaded", logging.String(logging.FieldModelVersion, version))

	// MARKING
	stageCtx, logger = o.enter(ctx, &out, StageMarking)
	marked, err := source.MarkProcessed(stageCtx, ids)
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = services.Wrap(ErrStoreUnavailable, string(StageMarking), "mark processed", "", err)
		}
		out.fail(StageMarking, err)
		return out
	}
	out.Marked = marked
	out.Result = ResultCompleted
	logger.Info("corrections marked processed",
		logging.Int64("marked", marked),
		logging.Int("considered", len(ids)),
	)
	return out
}

func (o *Orchestrator) check(ctx context.Context) (CorrectionSource, func() error, []corrections.Correction, error) {
	if o.Open == nil {
		return nil, nil, nil, fmt.Errorf("%w: no correction store configured", ErrStoreUnavailable)
	}
	source, closeSource, err := o.Open(ctx)
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return nil, nil, nil, err
	}
	items, err := source.List(ctx, corrections.FilterUnprocessed)
	if err != nil {
		return source, closeSource, nil, fmt.Errorf("%w: list unprocessed: %w", ErrStoreUnavailable, err)
	}
	return source, closeSource, items, nil
}

// decode turns correction images into samples. Undecodable images are
// logged and skipped; their ids stay in the mark set.
func (o *Orchestrator) decode(ctx context.Context, items []corrections.Correction) ([]model.Sample, []int64) {
	decodeFile := o.Decode
	if decodeFile == nil {
		decodeFile = model.DecodeFile
	}
	samples := make([]model.Sample, 0, len(items))
	var failures []int64
	for _, item := range items {
		pixels, err := decodeFile(item.ImageRef)
		if err != nil {
			failures = append(failures, item.ID)
			logging.WarnWithContext(logging.WithContext(services.WithCorrectionID(ctx, item.ID), o.logger()),
				"correction image skipped", "correction_decode_failed",
				logging.String(logging.FieldImageRef, item.ImageRef),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the image is unreadable; it will be marked processed and not retried"),
				logging.String(logging.FieldImpact, "sample excluded from this retrain"),
			)
			continue
		}
		samples = append(samples, model.NewSample(pixels, item.TrueLabel))
	}
	return samples, failures
}

func (o *Orchestrator) enter(ctx context.Context, out *Outcome, stage Stage) (context.Context, *slog.Logger) {
	out.Stage = stage
	ctx = services.WithStage(ctx, string(stage))
	logger := logging.WithContext(ctx, o.logger())
	logger.Info("stage entered", logging.String(logging.FieldEventType, "retrain_stage"))
	return ctx, logger
}

func (o *Orchestrator) finish(ctx context.Context, out *Outcome) {
	logger := logging.WithContext(services.WithStage(ctx, string(out.Stage)), o.logger())
	switch out.Result {
	case ResultCompleted:
		logger.Info("retrain cycle completed",
			logging.Int("unprocessed", out.Unprocessed),
			logging.Int64("marked", out.Marked),
			logging.Int("decode_failures", len(out.DecodeFailures)),
			logging.String(logging.FieldModelVersion, out.ModelVersion),
			logging.Duration("duration", out.Duration()),
			logging.String(logging.FieldEventType, "retrain_completed"),
		)
		o.notify(ctx, notifications.EventRetrainCompleted, notifications.Payload{
			"corrections":     out.Unprocessed,
			"decode_failures": len(out.DecodeFailures),
			"model_version":   out.ModelVersion,
		})
	case ResultFailed:
		hint, impact := failureGuidance(out.Stage)
		logging.ErrorWithContext(logger, "retrain cycle failed", "retrain_failed",
			logging.Error(out.Err),
			logging.String("error_kind", out.ErrorKind),
			logging.Duration("duration", out.Duration()),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, impact),
		)
		if out.Stage == StageReloading {
			o.notify(ctx, notifications.EventReloadFailed, notifications.Payload{
				"error":         out.Error,
				"model_version": out.ModelVersion,
			})
		} else {
			o.notify(ctx, notifications.EventRetrainFailed, notifications.Payload{
				"stage": string(out.Stage),
				"error": out.Error,
			})
		}
	default:
		logger.Debug("retrain cycle skipped",
			logging.String("reason", out.Reason),
			logging.Duration("duration", out.Duration()),
		)
	}
	logging.WithContext(services.WithStage(ctx, string(StageIdle)), o.logger()).Info("stage entered",
		logging.String(logging.FieldEventType, "retrain_stage"))
	if o.Observer != nil {
		o.Observer.ObserveCycle(*out)
	}
}

func failureGuidance(stage Stage) (string, string) {
	switch stage {
	case StageRetraining:
		return "check the reference dataset and training settings", "previous model and correction flags unchanged; next cycle retries"
	case StageReloading:
		return "check that the inference service is reachable, or trigger a reload manually", "new artifact saved but not serving; corrections stay unprocessed"
	case StageMarking:
		return "check the correction database", "new model is serving; corrections will be retrained next cycle"
	default:
		return "check logs for details", "cycle aborted"
	}
}

func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if o.Notifier == nil {
		return
	}
	if err := o.Notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger()), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "notification not delivered"),
		)
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	return logging.NewComponentLogger(o.Logger, "retrain")
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
