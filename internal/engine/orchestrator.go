// Package engine is the Execution Engine: the queue-driven worker that runs
// the Test Orchestration State Machine of spec.md §4.2 for each job, in
// both of the two runner-variant strategies spec.md §9 requires be
// supported side by side. Grounded on the original worker's engine.rs
// (execute_job / execute_job_async split) and executor.rs (USE_COMPILE_ONCE
// dual path), with container lifecycle adapted from the teacher's
// WorkerPool.executeCode.
package engine

import (
	"context"
	"time"

	"optimus/internal/container"
	"optimus/internal/job"
	"optimus/internal/langconfig"
)

// cancelChecker is satisfied by internal/store.Store; kept as an interface
// here so orchestrators are testable against a fake.
type cancelChecker interface {
	IsCancelled(ctx context.Context, id string) (bool, error)
}

// containerDriver is satisfied by *internal/container.Driver; kept as an
// interface here so both orchestrator strategies are testable against an
// in-memory fake instead of a live Docker daemon.
type containerDriver interface {
	Create(ctx context.Context, image string, limits container.Limits, env []string) (container.Handle, error)
	Start(ctx context.Context, h container.Handle) error
	Exec(ctx context.Context, h container.Handle, cmd []string, env []string, stdin []byte, deadline time.Duration) (container.ExecResult, error)
	Kill(ctx context.Context, h container.Handle) error
	Remove(ctx context.Context, h container.Handle) error
	Stats(ctx context.Context, h container.Handle) (container.ContainerStats, error)
}

// Orchestrator runs one job's Test Orchestration State Machine to completion
// and returns its JobResult, with S6_Teardown guaranteed on every exit path.
type Orchestrator interface {
	Run(ctx context.Context, j *job.Job, policy langconfig.Policy) *job.JobResult
}

// resourceLimits resolves the effective per-test limits: the job's own
// overrides fall back to the language policy's defaults, per spec.md §3.
func resourceLimits(j *job.Job, p langconfig.Policy) container.Limits {
	mem := j.MemoryMB
	if mem <= 0 {
		mem = p.MemDefaultMB
	}
	cpu := j.CPUCores
	if cpu <= 0 {
		cpu = p.CPUDefaultCore
	}
	return container.Limits{MemoryMB: mem, CPUCores: cpu}
}

// perTestDeadline resolves the per-test wall-clock cap.
func perTestDeadline(j *job.Job) time.Duration {
	return time.Duration(j.TimeoutMS) * time.Millisecond
}

// fanOutCompileError builds the S4_FanOutCompileError verdict set: every test
// marked CompileError with the compile phase's stderr, per spec.md §4.2.
func fanOutCompileError(cases []job.TestCase, stderr string, truncCap int64) []job.TestVerdict {
	out := make([]job.TestVerdict, len(cases))
	for i, tc := range cases {
		out[i] = job.TestVerdict{
			TestID: tc.ID,
			Status: job.CompileError,
			Stderr: truncate(stderr, truncCap),
		}
	}
	return out
}

// fanOutAbort builds the S5_Abort verdict set for the tests that never ran,
// classified per the abort reason.
func fanOutAbort(cases []job.TestCase, fromIdx int, status job.VerdictStatus) []job.TestVerdict {
	out := make([]job.TestVerdict, 0, len(cases)-fromIdx)
	for _, tc := range cases[fromIdx:] {
		out = append(out, job.TestVerdict{TestID: tc.ID, Status: status})
	}
	return out
}
