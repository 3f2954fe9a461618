package engine

import (
	"optimus/internal/container"
	"optimus/internal/job"
)

// classify applies the strict verdict priority of spec.md §4.2:
// Timeout > OOM > non-zero exit > output match > WrongAnswer.
func classify(exec container.ExecResult, expectedOutput []byte) job.VerdictStatus {
	switch {
	case exec.TimedOut:
		return job.TimeLimitExceeded
	case exec.OOMKilled:
		return job.MemoryLimitExceeded
	case exec.ExitCode != 0:
		return job.RuntimeError
	case job.OutputsMatch([]byte(exec.Stdout), expectedOutput):
		return job.Passed
	default:
		return job.WrongAnswer
	}
}

func exitCodePtr(exec container.ExecResult) *int {
	if exec.TimedOut {
		return nil
	}
	code := exec.ExitCode
	return &code
}

// truncate caps s at capBytes, appending a marker when truncated. Comparison
// for verdict purposes must use the untruncated bytes (spec.md §8); this
// helper is applied only to the copy stored for display.
func truncate(s string, capBytes int64) string {
	if capBytes <= 0 || int64(len(s)) <= capBytes {
		return s
	}
	return s[:capBytes] + "\n...[truncated]"
}
