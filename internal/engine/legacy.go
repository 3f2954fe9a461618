package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"optimus/internal/container"
	"optimus/internal/job"
	"optimus/internal/langconfig"
)

// LegacyOrchestrator implements the legacy runner variant of spec.md §9:
// one fresh container per test, running EXECUTION_MODE=compile_and_run
// (compile and execute in a single call, artifact discarded with the
// container). Grounded on the original's execute_job_async / legacy
// per-test-compile path, and on the teacher's WorkerPool.executeCode
// (one docker exec per job, no persisted container between calls).
//
// Tests MUST verify this produces identical verdicts to CompileOnceOrchestrator
// for identical inputs, per spec.md §9 — see orchestrator_test.go.
type LegacyOrchestrator struct {
	Driver       containerDriver
	Cancel       cancelChecker
	Logger       *logrus.Logger
	TruncCapByte int64
}

func (o *LegacyOrchestrator) Run(ctx context.Context, j *job.Job, policy langconfig.Policy) *job.JobResult {
	result := &job.JobResult{JobID: j.ID}
	limits := resourceLimits(j, policy)
	fields := logrus.Fields{"job_id": j.ID, "language": j.Language, "mode": "legacy"}

	verdicts := make([]job.TestVerdict, 0, len(j.TestCases))
	var sawCompileError bool
	var compileErrStderr string

	for i, tc := range j.TestCases {
		if cancelled, _ := o.Cancel.IsCancelled(ctx, j.ID); cancelled {
			verdicts = append(verdicts, fanOutAbort(j.TestCases, i, job.InternalErrorStatus)...)
			result.OverallStatus = job.OverallCancelled
			result.Results = verdicts
			return result
		}

		v, compileFailed, stderr := o.runOneTest(ctx, j, policy, limits, tc, fields)
		if compileFailed {
			sawCompileError = true
			compileErrStderr = stderr
			// S4_FanOutCompileError: every test fails the same way once the
			// source itself doesn't compile — no point running the rest.
			verdicts = fanOutCompileError(j.TestCases, compileErrStderr, o.TruncCapByte)
			break
		}
		verdicts = append(verdicts, v)
	}

	if sawCompileError {
		o.Logger.WithFields(fields).Warn("compilation failed; all tests marked CompileError")
		result.OverallStatus = job.OverallFailed
		result.Results = verdicts
		return result
	}

	result.OverallStatus = job.OverallCompleted
	result.Results = verdicts
	result.ComputeScore(j.TestCases)
	return result
}

// runOneTest creates a fresh container, runs compile_and_run, and tears it
// down, unconditionally (S6_Teardown on every exit from this helper).
func (o *LegacyOrchestrator) runOneTest(ctx context.Context, j *job.Job, policy langconfig.Policy, limits container.Limits, tc job.TestCase, fields logrus.Fields) (job.TestVerdict, bool, string) {
	handle, err := o.Driver.Create(ctx, policy.Image, limits, nil)
	if err != nil {
		o.Logger.WithFields(fields).WithError(err).Error("container create failed")
		return job.TestVerdict{TestID: tc.ID, Status: job.InternalErrorStatus}, false, ""
	}
	defer func() {
		_ = o.Driver.Kill(context.Background(), handle)
		_ = o.Driver.Remove(context.Background(), handle)
	}()

	if err := o.Driver.Start(ctx, handle); err != nil {
		o.Logger.WithFields(fields).WithError(err).Error("container start failed")
		return job.TestVerdict{TestID: tc.ID, Status: job.InternalErrorStatus}, false, ""
	}

	cmd := runnerCommand(policy, modeCompileAndRun)
	env := buildEnv(j.Language, modeCompileAndRun, j.Source, tc.Input)
	deadline := perTestDeadline(j)

	var stdin []byte
	if policy.StdinPiped {
		stdin = tc.Input
	}

	exec, err := o.Driver.Exec(ctx, handle, cmd, env, stdin, deadline)
	if err != nil {
		o.Logger.WithFields(fields).WithField("test_id", tc.ID).WithError(err).Warn("exec failed")
		return job.TestVerdict{TestID: tc.ID, Status: job.InternalErrorStatus}, false, ""
	}
	if exec.OOMKilled {
		if stats, statErr := o.Driver.Stats(ctx, handle); statErr == nil {
			o.Logger.WithFields(fields).WithField("test_id", tc.ID).WithField("memory_usage_ratio", stats.MemoryUsageRatio()).Warn("memory limit exceeded")
		} else {
			o.Logger.WithFields(fields).WithField("test_id", tc.ID).WithError(statErr).Warn("memory limit exceeded; stats unavailable")
		}
	}

	if policy.Compiled() && !exec.TimedOut && looksLikeCompileFailure(exec) {
		return job.TestVerdict{}, true, exec.Stderr
	}

	return job.TestVerdict{
		TestID:          tc.ID,
		Status:          classify(exec, tc.ExpectedOutput),
		Stdout:          truncate(exec.Stdout, o.TruncCapByte),
		Stderr:          truncate(exec.Stderr, o.TruncCapByte),
		ExecutionTimeMS: exec.ElapsedMS,
		ExitCode:        exitCodePtr(exec),
	}, false, ""
}

// looksLikeCompileFailure distinguishes a compile-stage failure from a
// runtime failure for compiled languages sharing one compile_and_run call.
// runnerCommand's compile_and_run command exits with this reserved code when
// the compile command fails, before the user program runs; a user program
// that itself exits with the same code is also reported as a compile failure.
func looksLikeCompileFailure(exec container.ExecResult) bool {
	const compileFailureExitCode = 2
	return exec.ExitCode == compileFailureExitCode
}
