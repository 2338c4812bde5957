package model

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"digitflow/internal/config"
	"digitflow/internal/logging"
	"digitflow/internal/services"
)

// Trainer produces networks from the reference dataset, optionally extended
// with correction samples.
type Trainer struct {
	DatasetDir string
	Settings   config.Training
	Logger     *slog.Logger

	// LoadDataset defaults to LoadDataset; tests substitute fixtures.
	LoadDataset func(dir string) (*Dataset, error)
}

// NewTrainer builds a Trainer from application configuration.
func NewTrainer(cfg *config.Config, logger *slog.Logger) *Trainer {
	return &Trainer{
		DatasetDir: cfg.Paths.DatasetDir,
		Settings:   cfg.Training,
		Logger:     logger,
	}
}

func (t *Trainer) log() *slog.Logger {
	return logging.NewComponentLogger(t.Logger, "trainer")
}

// Retrain fits a fresh network on the reference set plus extra samples with
// augmentation enabled. It returns metadata describing the run.
func (t *Trainer) Retrain(ctx context.Context, extra []Sample) (*Network, Metadata, error) {
	ds, err := t.reference()
	if err != nil {
		return nil, Metadata{}, err
	}
	combined := make([]Sample, 0, len(ds.Train)+len(extra))
	combined = append(combined, ds.Train...)
	combined = append(combined, extra...)

	t.log().Info("retraining model",
		logging.Int("reference_samples", len(ds.Train)),
		logging.Int("correction_samples", len(extra)),
		logging.Int("epochs", t.Settings.Epochs),
		logging.Int("batch_size", t.Settings.BatchSize),
		logging.String(logging.FieldEventType, "training_started"),
	)
	result, err := Train(ctx, combined, TrainOptions{
		Epochs:       t.Settings.Epochs,
		BatchSize:    t.Settings.BatchSize,
		LearningRate: t.Settings.LearningRate,
		Seed:         t.Settings.Seed,
		Augment: &Augmenter{
			RotationDegrees: t.Settings.RotationDegrees,
			Zoom:            t.Settings.ZoomRange,
			Shift:           t.Settings.ShiftRange,
		},
		Validation: ds.Test,
		Logger:     t.Logger,
	})
	if err != nil {
		return nil, Metadata{}, err
	}
	return result.Network, Metadata{
		CreatedAt:   time.Now().UTC(),
		Samples:     result.Samples,
		Corrections: len(extra),
	}, nil
}

// Bootstrap trains the baseline network on the reference set alone without
// augmentation. It satisfies BootstrapFunc.
func (t *Trainer) Bootstrap(ctx context.Context) (*Network, Metadata, error) {
	ds, err := t.reference()
	if err != nil {
		return nil, Metadata{}, err
	}
	t.log().Info("training bootstrap model",
		logging.Int("reference_samples", len(ds.Train)),
		logging.Int("epochs", t.Settings.Epochs),
		logging.Int("batch_size", t.Settings.BootstrapBatchSize),
		logging.String(logging.FieldEventType, "training_started"),
	)
	result, err := Train(ctx, ds.Train, TrainOptions{
		Epochs:       t.Settings.Epochs,
		BatchSize:    t.Settings.BootstrapBatchSize,
		LearningRate: t.Settings.LearningRate,
		Seed:         t.Settings.Seed,
		Validation:   ds.Test,
		Logger:       t.Logger,
	})
	if err != nil {
		return nil, Metadata{}, err
	}
	return result.Network, Metadata{
		CreatedAt: time.Now().UTC(),
		Samples:   result.Samples,
		Bootstrap: true,
	}, nil
}

// reference loads the dataset and applies the max_reference_samples cap with
// a seeded subsample so retrains stay reproducible.
func (t *Trainer) reference() (*Dataset, error) {
	load := t.LoadDataset
	if load == nil {
		load = LoadDataset
	}
	ds, err := load(t.DatasetDir)
	if err != nil {
		return nil, services.Wrap(services.ErrTrainingFailure, "", "load reference dataset", t.DatasetDir, err)
	}
	if len(ds.Train) == 0 {
		return nil, services.Wrap(services.ErrTrainingFailure, "", "load reference dataset", "training split is empty", nil)
	}
	if limit := t.Settings.MaxReferenceSamples; limit > 0 && limit < len(ds.Train) {
		rng := rand.New(rand.NewPCG(uint64(t.Settings.Seed), 3))
		picked := make([]Sample, limit)
		for i, idx := range rng.Perm(len(ds.Train))[:limit] {
			picked[i] = ds.Train[idx]
		}
		ds = &Dataset{Train: picked, Test: ds.Test}
		t.log().Debug("reference dataset subsampled", logging.Int("samples", limit))
	}
	return ds, nil
}
