package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"optimus/internal/job"
	"optimus/internal/langconfig"
)

// Store is the subset of internal/store.Store the worker loop needs.
type Store interface {
	cancelChecker
	PopJob(ctx context.Context, lang job.Language, timeout time.Duration) (string, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	SetState(ctx context.Context, id string, state job.State) error
	CommitResult(ctx context.Context, result *job.JobResult, state job.State, ttl time.Duration) error
}

// Worker is one engine process, pinned to a single language's queue per the
// single-language-per-process model of SPEC_FULL.md §12, owning up to
// MaxParallel jobs concurrently (P in spec.md §4.2).
type Worker struct {
	Language       job.Language
	Store          Store
	Policies       *langconfig.Manager
	CompileOnce    Orchestrator
	Legacy         Orchestrator
	UseCompileOnce bool
	Logger         *logrus.Logger
	PopTimeout     time.Duration
	ResultTTL      time.Duration
	MaxParallel    int
}

// Run blocks, pulling jobs from Language's queue until ctx is cancelled. Up
// to MaxParallel jobs run concurrently, each owning its own container; no
// cross-job state is shared, per spec.md §4.2's per-worker concurrency rule.
func (w *Worker) Run(ctx context.Context) {
	sem := make(chan struct{}, w.MaxParallel)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			w.Logger.WithField("language", w.Language).Info("worker shutting down, draining in-flight jobs")
			wg.Wait()
			return
		default:
		}

		id, err := w.Store.PopJob(ctx, w.Language, w.PopTimeout)
		if err != nil {
			w.Logger.WithField("language", w.Language).WithError(err).Warn("queue pop failed")
			time.Sleep(time.Second)
			continue
		}
		if id == "" {
			continue // poll timeout; loop back to re-check ctx.Done()
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(jobID string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			w.processJob(ctx, jobID)
		}(id)
	}
}

// processJob implements spec.md §4.2 steps 2-4: reads the job body, publishes
// Running, drives the state machine, commits the terminal result.
func (w *Worker) processJob(ctx context.Context, id string) {
	j, err := w.Store.GetJob(ctx, id)
	if err != nil {
		w.Logger.WithField("job_id", id).WithError(err).Warn("job body missing or expired; discarding")
		_ = w.Store.SetState(ctx, id, job.StateFailed)
		return
	}

	if err := w.Store.SetState(ctx, id, job.StateRunning); err != nil {
		w.Logger.WithField("job_id", id).WithError(err).Error("failed to publish Running state")
	}

	policy, ok := w.Policies.Get(j.Language)
	if !ok {
		w.Logger.WithField("job_id", id).WithField("language", j.Language).Error("unknown language at execution time")
		result := &job.JobResult{JobID: id, OverallStatus: job.OverallInternalErr}
		_ = w.Store.CommitResult(ctx, result, job.StateFailed, w.ResultTTL)
		return
	}

	orchestrator := w.Legacy
	if w.UseCompileOnce {
		orchestrator = w.CompileOnce
	}

	w.Logger.WithFields(logrus.Fields{
		"job_id": id, "language": j.Language, "test_count": len(j.TestCases),
		"timeout_ms": j.TimeoutMS, "source_bytes": len(j.Source),
	}).Debug("starting job execution")

	result := orchestrator.Run(ctx, j, policy)

	state := terminalState(result.OverallStatus)
	if err := w.Store.CommitResult(ctx, result, state, w.ResultTTL); err != nil {
		w.Logger.WithField("job_id", id).WithError(err).Error("failed to commit result")
	}

	w.Logger.WithFields(logrus.Fields{
		"job_id": id, "overall_status": result.OverallStatus,
		"score": result.Score, "max_score": result.MaxScore,
	}).Debug("job execution finished")
}

func terminalState(status job.OverallStatus) job.State {
	switch status {
	case job.OverallCompleted:
		return job.StateCompleted
	case job.OverallFailed:
		return job.StateFailed
	case job.OverallTimedOut:
		return job.StateTimedOut
	case job.OverallCancelled:
		return job.StateCancelled
	default:
		return job.StateFailed
	}
}
