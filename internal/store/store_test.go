package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"optimus/internal/job"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := New(DefaultConfig(mr.Addr()))
	if err != nil {
		t.Fatalf("failed to connect store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSubmitAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := &job.Job{ID: "abc", Language: "python", TestCases: []job.TestCase{{ID: 1, Weight: 10}}}
	if err := s.SubmitJob(ctx, j, time.Minute); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	got, err := s.GetJob(ctx, "abc")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID || got.Language != j.Language {
		t.Errorf("GetJob returned %+v, want %+v", got, j)
	}

	state, err := s.GetState(ctx, "abc")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != job.StateQueued {
		t.Errorf("state = %v, want Queued", state)
	}

	n, err := s.QueueLength(ctx, "python")
	if err != nil {
		t.Fatalf("QueueLength: %v", err)
	}
	if n != 1 {
		t.Errorf("QueueLength = %d, want 1", n)
	}

	id, err := s.PopJob(ctx, "python", time.Second)
	if err != nil {
		t.Fatalf("PopJob: %v", err)
	}
	if id != "abc" {
		t.Errorf("PopJob returned %q, want abc", id)
	}
}

func TestPopJobTimesOutWithoutError(t *testing.T) {
	s := newTestStore(t)
	id, err := s.PopJob(context.Background(), "go", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("PopJob: unexpected error %v", err)
	}
	if id != "" {
		t.Errorf("PopJob returned %q on empty queue, want empty string", id)
	}
}

func TestCommitResultIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result := &job.JobResult{JobID: "xyz", OverallStatus: job.OverallCompleted, Score: 10, MaxScore: 10}
	if err := s.CommitResult(ctx, result, job.StateCompleted, time.Minute); err != nil {
		t.Fatalf("CommitResult: %v", err)
	}

	got, err := s.GetResult(ctx, "xyz")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.OverallStatus != job.OverallCompleted {
		t.Errorf("OverallStatus = %v, want Completed", got.OverallStatus)
	}

	state, err := s.GetState(ctx, "xyz")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != job.StateCompleted {
		t.Errorf("state = %v, want Completed", state)
	}
}

func TestCancelFlagAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "never-submitted")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("Exists should be false for an id that was never submitted")
	}

	j := &job.Job{ID: "cancel-me", Language: "go"}
	if err := s.SubmitJob(ctx, j, time.Minute); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	cancelled, err := s.IsCancelled(ctx, "cancel-me")
	if err != nil || cancelled {
		t.Fatalf("IsCancelled should be false before a cancel request, got %v, err %v", cancelled, err)
	}

	if err := s.RequestCancel(ctx, "cancel-me", time.Minute); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	cancelled, err = s.IsCancelled(ctx, "cancel-me")
	if err != nil {
		t.Fatalf("IsCancelled: %v", err)
	}
	if !cancelled {
		t.Error("IsCancelled should be true after RequestCancel")
	}
}
