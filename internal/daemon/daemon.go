package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"digitflow/internal/api"
	"digitflow/internal/config"
	"digitflow/internal/corrections"
	"digitflow/internal/inference"
	"digitflow/internal/logging"
	"digitflow/internal/metrics"
	"digitflow/internal/model"
	"digitflow/internal/notifications"
	"digitflow/internal/retrain"
)

// Options configures optional daemon collaborators.
type Options struct {
	// WithScheduler runs the retraining scheduler in-process, reloading the
	// served model directly instead of over HTTP.
	WithScheduler bool
	Notifier      notifications.Service
	Metrics       *metrics.Registry
	// Trainer overrides the dataset-backed trainer, mainly for tests.
	Trainer *model.Trainer
}

// Daemon owns the inference service, the HTTP API, and optionally the
// retraining scheduler, and enforces single-instance execution per data dir.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *corrections.Store
	artifacts *model.ArtifactStore
	inference *inference.Service
	scheduler *retrain.Scheduler
	server    *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	LockFilePath string
	Model        inference.Status
	Corrections  corrections.Stats
	Scheduler    *retrain.SchedulerStatus
}

// New constructs a daemon with initialized dependencies. Nothing listens or
// loads until Start.
func New(cfg *config.Config, store *corrections.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(cfg)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	trainer := opts.Trainer
	if trainer == nil {
		trainer = model.NewTrainer(cfg, logger)
	}

	artifacts := model.NewArtifactStore(cfg.Paths.ModelPath, trainer.Bootstrap, logger)
	svc := inference.NewService(artifacts, logger, inference.WithObserver(opts.Metrics))

	lockPath := filepath.Join(cfg.Paths.DataDir, "digitflow.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		artifacts: artifacts,
		inference: svc,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	if opts.WithScheduler {
		reload := retrain.ReloaderFunc(func(ctx context.Context) error {
			_, err := svc.Reload(ctx)
			return err
		})
		orch := &retrain.Orchestrator{
			Open:      retrain.StoreOpener(cfg.Paths.DatabasePath),
			Trainer:   trainer,
			Artifacts: artifacts,
			Reloader:  reload,
			Notifier:  opts.Notifier,
			Observer:  opts.Metrics,
			Logger:    logger,
			Threshold: cfg.Retrain.DriftThreshold,
		}
		d.scheduler = retrain.NewScheduler(orch, retrain.SchedulerOptions{
			Interval:   cfg.RetrainInterval(),
			Align:      cfg.Retrain.AlignToInterval,
			RunOnStart: cfg.Retrain.RunOnStart,
			LockPath:   cfg.RetrainLockPath(),
			StatusPath: cfg.RetrainStatusPath(),
			Logger:     logger,
		})
	}

	apiOpts := api.Options{
		Bind:           cfg.Paths.APIBind,
		Token:          cfg.Paths.APIToken,
		DriftThreshold: cfg.Retrain.DriftThreshold,
		Inference:      svc,
		Corrections:    store,
		Submitter:      &corrections.ImageStore{Dir: cfg.Paths.CorrectionsDir, Recorder: store},
		Observer:       opts.Metrics,
		Metrics:        opts.Metrics.Handler(),
		Logger:         logger,
	}
	if d.scheduler != nil {
		apiOpts.Scheduler = d.scheduler
	}
	server, err := api.NewServer(apiOpts)
	if err != nil {
		return nil, fmt.Errorf("create api server: %w", err)
	}
	d.server = server
	return d, nil
}

// Start acquires the daemon lock, loads the model (bootstrapping a baseline
// when no artifact exists), starts the API server, and launches the
// scheduler when configured. A failed initial load is logged and the API
// still starts; predictions return 503 until a reload succeeds.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another digitflow server is already running for %s", d.cfg.Paths.DataDir)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := d.inference.Reload(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "initial model load failed", "model_initial_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'digitflow dataset download' or 'digitflow bootstrap'"),
			logging.String(logging.FieldImpact, "predictions return 503 until POST /reload succeeds"),
		)
	}

	if err := d.server.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	if d.scheduler != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			_ = d.scheduler.Run(runCtx)
		}()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("digitflow server started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.Addr()),
		logging.Bool("scheduler", d.scheduler != nil),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.server.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("digitflow server stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Inference exposes the served model, for in-process callers.
func (d *Daemon) Inference() *inference.Service {
	return d.inference
}

// Scheduler returns the in-process scheduler or nil.
func (d *Daemon) Scheduler() *retrain.Scheduler {
	return d.scheduler
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		Model:        d.inference.Status(),
	}
	if st.Running {
		st.Address = d.server.Addr()
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		st.Corrections = stats
	} else {
		d.logger.Debug("correction stats unavailable", logging.Error(err))
	}
	if d.scheduler != nil {
		sched := d.scheduler.Status()
		st.Scheduler = &sched
	}
	return st
}
