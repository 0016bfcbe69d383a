package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/njoerd114/plannersync/internal/jobs"
	"github.com/njoerd114/plannersync/internal/session"
)

// PeriodicJobName is the unique name of the background sync job.
const PeriodicJobName = "plannersync.periodic"

// SessionSource hands out the current session snapshot.
// Implemented by [session.Manager].
type SessionSource interface {
	Current() (session.Session, error)
}

// PassRunner runs one full sync pass. Implemented by [Orchestrator].
type PassRunner interface {
	RunOnce(ctx context.Context, sess session.Session) (Stats, error)
}

// Scheduler registers sync passes with a [jobs.Runner].
type Scheduler struct {
	runner   *jobs.Runner
	pass     PassRunner
	sessions SessionSource
	interval time.Duration
	log      *slog.Logger
}

// NewScheduler creates a Scheduler that runs pass every interval.
func NewScheduler(runner *jobs.Runner, pass PassRunner, sessions SessionSource, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		pass:     pass,
		sessions: sessions,
		interval: interval,
		log:      logger,
	}
}

// SchedulePeriodic registers the unique periodic sync job. Calling it again
// while the job is active keeps the existing one.
func (s *Scheduler) SchedulePeriodic() (*jobs.Handle, error) {
	h, _, err := s.runner.EnqueueUniquePeriodic(PeriodicJobName, s.interval,
		jobs.Constraints{RequiresNetwork: true}, jobs.KeepExisting, s.run)
	return h, err
}

// SyncNow enqueues a one-shot sync pass that runs as soon as a network is
// available.
func (s *Scheduler) SyncNow() (*jobs.Handle, error) {
	return s.runner.EnqueueOnce(jobs.Constraints{RequiresNetwork: true}, s.run)
}

func (s *Scheduler) run(ctx context.Context) jobs.Result {
	sess, err := s.sessions.Current()
	if errors.Is(err, session.ErrSignedOut) {
		s.log.Debug("skipping sync: not signed in")
		return jobs.Success{}
	}
	if err != nil {
		return jobs.Retry{Err: err}
	}

	if _, err := s.pass.RunOnce(ctx, sess); err != nil {
		s.log.Warn("sync pass failed", "error", err)
		return jobs.Retry{Err: err}
	}
	return jobs.Success{}
}
