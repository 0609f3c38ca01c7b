package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duelhall/mambot/mambot/database/repositories"
)

var ErrRolloverAlreadyRunning = errors.New("rollover is already running")

// Job is one unit of rollover work. Run must be idempotent for a given day
// key: the scheduler retries failed jobs on later ticks.
type Job interface {
	Name() string
	Run(ctx context.Context, dayKey string) error
}

// Scheduler drives the rollover: when a tick lands past the boundary it runs
// every due job for the new day, each job's completion marker persisted
// immediately so a crash resumes instead of repeating. Only after all jobs
// finish does the boundary itself advance, atomically with clearing the
// markers and the simulate flag.
type Scheduler struct {
	boundary  *Boundary
	clock     Clock
	rollovers repositories.RolloverRepository
	jobs      []Job

	running    atomic.Bool
	mu         sync.Mutex
	startedAt  time.Time
	currentJob string
}

func New(boundary *Boundary, clock Clock, rollovers repositories.RolloverRepository, jobs ...Job) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{
		boundary:  boundary,
		clock:     clock,
		rollovers: rollovers,
		jobs:      jobs,
	}
}

// CheckAndRun processes the current boundary if it is due. Safe to call from
// timers and admin commands alike: a concurrent call fails fast with
// ErrRolloverAlreadyRunning, a call with nothing due is a no-op.
func (s *Scheduler) CheckAndRun(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRolloverAlreadyRunning
	}
	defer s.running.Store(false)

	s.mu.Lock()
	s.startedAt = s.clock.Now()
	s.currentJob = ""
	s.mu.Unlock()

	target, err := s.targetDay(ctx)
	if err != nil {
		return err
	}
	if target == "" {
		return nil
	}

	runs, err := s.rollovers.JobRuns(ctx)
	if err != nil {
		return err
	}

	for _, job := range s.jobs {
		if runs[job.Name()] == target {
			continue
		}
		s.mu.Lock()
		s.currentJob = job.Name()
		s.mu.Unlock()

		start := time.Now()
		if err := job.Run(ctx, target); err != nil {
			return fmt.Errorf("rollover job %s failed for %s: %w", job.Name(), target, err)
		}
		if err := s.rollovers.SetJobRun(ctx, job.Name(), target); err != nil {
			return err
		}
		slog.Info("Rollover job completed",
			slog.String("job", job.Name()),
			slog.String("day", target),
			slog.Duration("took", time.Since(start)))
	}

	s.mu.Lock()
	s.currentJob = ""
	s.mu.Unlock()

	if err := s.rollovers.AdvanceBoundary(ctx, target); err != nil {
		return err
	}
	slog.Info("Rollover boundary advanced", slog.String("day", target))
	return nil
}

// targetDay returns the day key due for processing, or "" when up to date.
// The simulate flag advances the effective boundary by exactly one period.
func (s *Scheduler) targetDay(ctx context.Context) (string, error) {
	state, err := s.rollovers.State(ctx)
	if err != nil {
		return "", err
	}

	target := s.boundary.DayKey(s.clock.Now())
	if state.SimulateNextDay {
		target, err = s.boundary.NextDayKey(target)
		if err != nil {
			return "", err
		}
	}
	// Day keys order lexicographically. A target at or behind the processed
	// day is never due, so the tick after a simulated rollover stays a no-op
	// until the real clock catches up.
	if target <= state.LastProcessedDay {
		return "", nil
	}
	return target, nil
}

// SimulateNextDay makes the next check treat the boundary as one day later.
func (s *Scheduler) SimulateNextDay(ctx context.Context) error {
	return s.rollovers.SetSimulateNextDay(ctx, true)
}

// ResetSimulatedDay clears the simulate flag without running a rollover.
func (s *Scheduler) ResetSimulatedDay(ctx context.Context) error {
	return s.rollovers.SetSimulateNextDay(ctx, false)
}

// Job states reported by Status.
const (
	JobPending = "pending"
	JobDue     = "due"
	JobRunning = "running"
	JobDone    = "done"
)

type JobStatus struct {
	Name       string
	State      string
	LastRunDay string
}

type Status struct {
	Running    bool
	StartedAt  time.Time
	CurrentJob string
	TargetDay  string
	Boundary   string
	Jobs       []JobStatus
}

// Status reports per-job progress toward the due boundary, for stuck-run
// diagnosis.
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	target, err := s.targetDay(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := s.rollovers.JobRuns(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	status := &Status{
		Running:    s.running.Load(),
		StartedAt:  s.startedAt,
		CurrentJob: s.currentJob,
		TargetDay:  target,
		Boundary:   s.boundary.Label(),
	}
	current := s.currentJob
	s.mu.Unlock()

	for _, job := range s.jobs {
		js := JobStatus{Name: job.Name(), LastRunDay: runs[job.Name()]}
		switch {
		case status.Running && job.Name() == current:
			js.State = JobRunning
		case target == "":
			js.State = JobPending
		case runs[job.Name()] == target:
			js.State = JobDone
		default:
			js.State = JobDue
		}
		status.Jobs = append(status.Jobs, js)
	}
	return status, nil
}
