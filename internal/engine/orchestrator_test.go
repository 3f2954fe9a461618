package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"optimus/internal/container"
	"optimus/internal/job"
	"optimus/internal/langconfig"
)

// fakeDriver is an in-memory stand-in for *internal/container.Driver: no
// Docker daemon involved. Exec results are scripted per execution mode so tests
// can exercise both the compile-once and legacy code paths identically.
type fakeDriver struct {
	created   int
	execCalls []string // records each cmd's mode marker for ordering assertions
	// scripted maps an exec's recognized mode ("compile", "execute",
	// "compile_and_run") to the result it returns.
	scripted map[string]container.ExecResult
}

func (f *fakeDriver) Create(ctx context.Context, image string, limits container.Limits, env []string) (container.Handle, error) {
	f.created++
	return container.Handle{ID: fmt.Sprintf("fake-%d", f.created)}, nil
}

func (f *fakeDriver) Start(ctx context.Context, h container.Handle) error { return nil }

func (f *fakeDriver) Exec(ctx context.Context, h container.Handle, cmd []string, env []string, stdin []byte, deadline time.Duration) (container.ExecResult, error) {
	mode := modeFromEnv(env)
	f.execCalls = append(f.execCalls, mode)
	if r, ok := f.scripted[mode]; ok {
		return r, nil
	}
	return container.ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}

func (f *fakeDriver) Kill(ctx context.Context, h container.Handle) error   { return nil }
func (f *fakeDriver) Remove(ctx context.Context, h container.Handle) error { return nil }

func (f *fakeDriver) Stats(ctx context.Context, h container.Handle) (container.ContainerStats, error) {
	return container.ContainerStats{}, nil
}

func modeFromEnv(env []string) string {
	for _, kv := range env {
		if len(kv) > len("EXECUTION_MODE=") && kv[:len("EXECUTION_MODE=")] == "EXECUTION_MODE=" {
			return kv[len("EXECUTION_MODE="):]
		}
	}
	return ""
}

type fakeCancel struct{ cancelled bool }

func (f *fakeCancel) IsCancelled(ctx context.Context, id string) (bool, error) {
	return f.cancelled, nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(logTestDiscard{})
	return l
}

type logTestDiscard struct{}

func (logTestDiscard) Write(p []byte) (int, error) { return len(p), nil }

func samplePolicy() langconfig.Policy {
	return langconfig.Policy{
		Image:          "fake-image:latest",
		FileExtension:  "py",
		ExecuteCmd:     "python3 /code/main.py",
		StdinPiped:     true,
		MemDefaultMB:   128,
		CPUDefaultCore: 0.5,
	}
}

func sampleJob() *job.Job {
	return &job.Job{
		ID:       "job-1",
		Language: "python",
		Source:   []byte("print(input())"),
		TimeoutMS: 2000,
		TestCases: []job.TestCase{
			{ID: 1, Input: []byte("a"), ExpectedOutput: []byte("a"), Weight: 10},
			{ID: 2, Input: []byte("b"), ExpectedOutput: []byte("b"), Weight: 10},
		},
	}
}

// TestCompileOnceAndLegacyAgree verifies spec.md §9's explicit requirement:
// both orchestrator strategies must produce identical verdicts for identical
// inputs, for an interpreted language where the policy has no compile step.
func TestCompileOnceAndLegacyAgree(t *testing.T) {
	policy := samplePolicy()
	j := sampleJob()

	scripted := map[string]container.ExecResult{
		"execute":         {ExitCode: 0, Stdout: "a"},
		"compile_and_run": {ExitCode: 0, Stdout: "a"},
	}

	compileOnceDriver := &fakeDriver{scripted: scripted}
	co := &CompileOnceOrchestrator{
		Driver: compileOnceDriver, Cancel: &fakeCancel{}, Logger: testLogger(),
		CompileMS: 5000, TruncCapByte: 1 << 16,
	}
	coResult := co.Run(context.Background(), j, policy)

	legacyDriver := &fakeDriver{scripted: scripted}
	lo := &LegacyOrchestrator{
		Driver: legacyDriver, Cancel: &fakeCancel{}, Logger: testLogger(),
		TruncCapByte: 1 << 16,
	}
	loResult := lo.Run(context.Background(), j, policy)

	if coResult.OverallStatus != loResult.OverallStatus {
		t.Fatalf("overall status mismatch: compile-once=%v legacy=%v", coResult.OverallStatus, loResult.OverallStatus)
	}
	if len(coResult.Results) != len(loResult.Results) {
		t.Fatalf("result count mismatch: compile-once=%d legacy=%d", len(coResult.Results), len(loResult.Results))
	}
	for i := range coResult.Results {
		a, b := coResult.Results[i], loResult.Results[i]
		if a.TestID != b.TestID || a.Status != b.Status {
			t.Errorf("verdict %d mismatch: compile-once=%+v legacy=%+v", i, a, b)
		}
	}
	if coResult.Score != loResult.Score || coResult.MaxScore != loResult.MaxScore {
		t.Errorf("score mismatch: compile-once=%d/%d legacy=%d/%d", coResult.Score, coResult.MaxScore, loResult.Score, loResult.MaxScore)
	}

	// Legacy must tear down and recreate a container per test; compile-once
	// must create exactly once for the whole job.
	if compileOnceDriver.created != 1 {
		t.Errorf("compile-once should create exactly 1 container, created %d", compileOnceDriver.created)
	}
	if legacyDriver.created != len(j.TestCases) {
		t.Errorf("legacy should create one container per test (%d), created %d", len(j.TestCases), legacyDriver.created)
	}
}

func TestCompileOnceCompileFailureFansOutCompileError(t *testing.T) {
	policy := samplePolicy()
	policy.CompileCmd = "g++ -O2 -o /code/main /code/main.cpp"
	j := sampleJob()

	driver := &fakeDriver{scripted: map[string]container.ExecResult{
		"compile": {ExitCode: 1, Stderr: "syntax error"},
	}}
	co := &CompileOnceOrchestrator{Driver: driver, Cancel: &fakeCancel{}, Logger: testLogger(), CompileMS: 5000, TruncCapByte: 1 << 16}
	result := co.Run(context.Background(), j, policy)

	if result.OverallStatus != job.OverallFailed {
		t.Fatalf("OverallStatus = %v, want Failed", result.OverallStatus)
	}
	for _, v := range result.Results {
		if v.Status != job.CompileError {
			t.Errorf("test %d status = %v, want CompileError", v.TestID, v.Status)
		}
	}
}

func TestCompileOnceCancellationAbortsRemainingTests(t *testing.T) {
	policy := samplePolicy()
	j := sampleJob()
	j.TestCases = append(j.TestCases, job.TestCase{ID: 3, Weight: 10})

	driver := &fakeDriver{scripted: map[string]container.ExecResult{
		"execute": {ExitCode: 0, Stdout: "a"},
	}}
	cancel := &fakeCancel{}
	co := &CompileOnceOrchestrator{Driver: driver, Cancel: cancel, Logger: testLogger(), CompileMS: 5000, TruncCapByte: 1 << 16}

	// Cancel immediately so nothing runs.
	cancel.cancelled = true
	result := co.Run(context.Background(), j, policy)

	if result.OverallStatus != job.OverallCancelled {
		t.Fatalf("OverallStatus = %v, want Cancelled", result.OverallStatus)
	}
	if len(result.Results) != len(j.TestCases) {
		t.Fatalf("expected a verdict for every test case, got %d", len(result.Results))
	}
	for _, v := range result.Results {
		if v.Status != job.InternalErrorStatus {
			t.Errorf("aborted test %d status = %v, want InternalError", v.TestID, v.Status)
		}
	}
}
