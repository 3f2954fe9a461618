package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"optimus/internal/container"
	"optimus/internal/job"
	"optimus/internal/langconfig"
)

// CompileOnceOrchestrator implements the new runner variant of spec.md §9:
// one container for the whole job, a single compile phase whose artifact
// persists under /code, then N execute phases against it. This is the
// literal state machine of spec.md §4.2 (S0_Prepare .. S6_Teardown).
// Grounded on the original's DockerEngine::execute_job_in_single_container.
type CompileOnceOrchestrator struct {
	Driver       containerDriver
	Cancel       cancelChecker
	Logger       *logrus.Logger
	CompileMS    int64
	TruncCapByte int64
}

func (o *CompileOnceOrchestrator) Run(ctx context.Context, j *job.Job, policy langconfig.Policy) *job.JobResult {
	result := &job.JobResult{JobID: j.ID}
	limits := resourceLimits(j, policy)
	fields := logrus.Fields{"job_id": j.ID, "language": j.Language, "mode": "compile_once"}

	// S0_Prepare: create (not start) the container.
	handle, err := o.Driver.Create(ctx, policy.Image, limits, nil)
	if err != nil {
		o.Logger.WithFields(fields).WithError(err).Error("S0_Prepare: container create failed")
		result.OverallStatus = job.OverallInternalErr
		result.Results = fanOutAbort(j.TestCases, 0, job.InternalErrorStatus)
		return result
	}
	// S6_Teardown: guaranteed on every exit path.
	defer func() {
		_ = o.Driver.Kill(context.Background(), handle)
		_ = o.Driver.Remove(context.Background(), handle)
	}()

	if err := o.Driver.Start(ctx, handle); err != nil {
		o.Logger.WithFields(fields).WithError(err).Error("S0_Prepare: container start failed")
		result.OverallStatus = job.OverallInternalErr
		result.Results = fanOutAbort(j.TestCases, 0, job.InternalErrorStatus)
		return result
	}

	if policy.Compiled() {
		// S1_Compile.
		cmd := runnerCommand(policy, modeCompile)
		env := buildEnv(j.Language, modeCompile, j.Source, nil)
		exec, err := o.Driver.Exec(ctx, handle, cmd, env, nil, time.Duration(o.CompileMS)*time.Millisecond)
		if err != nil {
			o.Logger.WithFields(fields).WithError(err).Error("S1_Compile: exec failed")
			result.OverallStatus = job.OverallInternalErr
			result.Results = fanOutAbort(j.TestCases, 0, job.InternalErrorStatus)
			return result
		}
		if exec.TimedOut {
			// S5_Abort(TimedOut).
			result.OverallStatus = job.OverallTimedOut
			result.Results = fanOutAbort(j.TestCases, 0, job.TimeLimitExceeded)
			return result
		}
		if exec.ExitCode != 0 {
			// S4_FanOutCompileError.
			o.Logger.WithFields(fields).Warn("compilation failed; all tests marked CompileError")
			result.OverallStatus = job.OverallFailed
			result.Results = fanOutCompileError(j.TestCases, exec.Stderr, o.TruncCapByte)
			return result
		}
	}

	// S2_Execute: sequential, in submission order; tests share the compile
	// artifact and the mutating /code directory so intra-job parallelism is
	// intentionally absent, per spec.md §4.2/§9.
	verdicts := make([]job.TestVerdict, 0, len(j.TestCases))
	for i, tc := range j.TestCases {
		if cancelled, _ := o.Cancel.IsCancelled(ctx, j.ID); cancelled {
			// S5_Abort(Cancelled): remaining tests never ran.
			verdicts = append(verdicts, fanOutAbort(j.TestCases, i, job.InternalErrorStatus)...)
			result.OverallStatus = job.OverallCancelled
			result.Results = verdicts
			return result
		}

		cmd := runnerCommand(policy, modeExecute)
		env := buildEnv(j.Language, modeExecute, j.Source, tc.Input)
		deadline := perTestDeadline(j)

		var stdin []byte
		if policy.StdinPiped {
			stdin = tc.Input
		}

		exec, err := o.Driver.Exec(ctx, handle, cmd, env, stdin, deadline)
		if err != nil {
			o.Logger.WithFields(fields).WithField("test_id", tc.ID).WithError(err).Warn("exec failed")
			verdicts = append(verdicts, job.TestVerdict{TestID: tc.ID, Status: job.InternalErrorStatus})
			continue
		}
		if exec.OOMKilled {
			o.logMemoryDiagnostic(ctx, handle, tc.ID, fields)
		}

		verdicts = append(verdicts, o.buildVerdict(tc, exec))
	}

	result.OverallStatus = job.OverallCompleted
	result.Results = verdicts
	result.ComputeScore(j.TestCases)
	return result
}

// logMemoryDiagnostic fetches a one-shot stats snapshot after an OOM kill and
// logs how close the test ran to its memory cap. Best-effort: the container
// may already be gone by the time this runs, so a Stats error is only logged,
// never surfaced in the verdict.
func (o *CompileOnceOrchestrator) logMemoryDiagnostic(ctx context.Context, h container.Handle, testID uint32, fields logrus.Fields) {
	stats, err := o.Driver.Stats(ctx, h)
	if err != nil {
		o.Logger.WithFields(fields).WithField("test_id", testID).WithError(err).Warn("memory limit exceeded; stats unavailable")
		return
	}
	o.Logger.WithFields(fields).WithField("test_id", testID).WithField("memory_usage_ratio", stats.MemoryUsageRatio()).Warn("memory limit exceeded")
}

func (o *CompileOnceOrchestrator) buildVerdict(tc job.TestCase, exec container.ExecResult) job.TestVerdict {
	return job.TestVerdict{
		TestID:          tc.ID,
		Status:          classify(exec, tc.ExpectedOutput),
		Stdout:          truncate(exec.Stdout, o.TruncCapByte),
		Stderr:          truncate(exec.Stderr, o.TruncCapByte),
		ExecutionTimeMS: exec.ElapsedMS,
		ExitCode:        exitCodePtr(exec),
	}
}
