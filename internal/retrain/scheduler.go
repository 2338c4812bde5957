package retrain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"digitflow/internal/logging"
)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Interval time.Duration
	// Align fires on wall-clock multiples of Interval (top of the hour for
	// an hourly cadence) instead of Interval after start.
	Align      bool
	RunOnStart bool
	// LockPath, when set, is flock'ed for the duration of each cycle so
	// cycles in different processes never overlap.
	LockPath string
	// StatusPath, when set, receives the JSON outcome of every cycle.
	StatusPath string
	Logger     *slog.Logger
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Running bool      `json:"running"`
	NextRun time.Time `json:"next_run,omitzero"`
	Skipped int64     `json:"skipped"`
	Last    *Outcome  `json:"last,omitempty"`
}

// Scheduler runs at most one cycle at a time. Triggers that arrive while a
// cycle is running are skipped, not queued.
type Scheduler struct {
	orch *Orchestrator
	opts SchedulerOptions
	log  *slog.Logger

	cycleMu sync.Mutex

	mu      sync.RWMutex
	running bool
	next    time.Time
	skipped int64
	last    *Outcome

	wg sync.WaitGroup
}

// NewScheduler wraps orch with the skip-if-running guard.
func NewScheduler(orch *Orchestrator, opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &Scheduler{
		orch: orch,
		opts: opts,
		log:  logging.NewComponentLogger(opts.Logger, "scheduler"),
	}
}

// NextRun returns the next trigger time after now.
func NextRun(now time.Time, interval time.Duration, align bool) time.Time {
	if align {
		return now.Truncate(interval).Add(interval)
	}
	return now.Add(interval)
}

// Run fires cycles on the configured cadence until ctx is cancelled, then
// waits for an in-flight cycle to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("retrain scheduler started",
		logging.Duration("interval", s.opts.Interval),
		logging.Bool("aligned", s.opts.Align),
		logging.String("lock", s.opts.LockPath),
	)
	defer s.wg.Wait()

	if s.opts.RunOnStart {
		s.fire(ctx, "startup")
	}
	for {
		now := time.Now()
		next := NextRun(now, s.opts.Interval, s.opts.Align)
		s.mu.Lock()
		s.next = next
		s.mu.Unlock()

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("retrain scheduler stopping")
			return nil
		case <-timer.C:
			s.fire(ctx, "schedule")
		}
	}
}

// TriggerNow runs one cycle synchronously. It returns ErrCycleInProgress
// when another cycle holds the guard.
func (s *Scheduler) TriggerNow(ctx context.Context) (Outcome, error) {
	release, err := s.acquire()
	if err != nil {
		return Outcome{}, err
	}
	defer release()
	return s.run(ctx, "manual"), nil
}

// LastOutcome returns the most recent finished cycle.
func (s *Scheduler) LastOutcome() (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// Status reports whether a cycle is running, the next trigger, and the last outcome.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SchedulerStatus{Running: s.running, NextRun: s.next, Skipped: s.skipped}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	return st
}

func (s *Scheduler) fire(ctx context.Context, trigger string) {
	release, err := s.acquire()
	if err != nil {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		logging.WarnWithContext(s.log, "retrain trigger skipped", "retrain_trigger_skipped",
			logging.String("trigger", trigger),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "a previous cycle is still running"),
			logging.String(logging.FieldImpact, "this trigger is dropped; the next one will check again"),
		)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.run(ctx, trigger)
	}()
}

// acquire takes the in-process guard and, when configured, the cross-process
// lock file. Both are released by the returned function.
func (s *Scheduler) acquire() (func(), error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	if s.opts.LockPath == "" {
		return s.cycleMu.Unlock, nil
	}
	lock := flock.New(s.opts.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		s.cycleMu.Unlock()
		return nil, fmt.Errorf("acquire retrain lock: %w", err)
	}
	if !ok {
		s.cycleMu.Unlock()
		return nil, fmt.Errorf("%w: %s is held by another process", ErrCycleInProgress, s.opts.LockPath)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			s.log.Warn("release retrain lock failed", logging.Error(err))
		}
		s.cycleMu.Unlock()
	}, nil
}

func (s *Scheduler) run(ctx context.Context, trigger string) Outcome {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.log.Debug("retrain cycle triggered", logging.String("trigger", trigger))
	out := s.orch.RunCycle(ctx)

	s.mu.Lock()
	s.running = false
	s.last = &out
	s.mu.Unlock()

	if s.opts.StatusPath != "" {
		if err := SaveOutcome(s.opts.StatusPath, out); err != nil {
			s.log.Warn("persist retrain outcome failed",
				logging.String("path", s.opts.StatusPath),
				logging.Error(err),
			)
		}
	}
	return out
}
