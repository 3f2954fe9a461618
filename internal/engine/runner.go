package engine

import (
	"encoding/base64"
	"fmt"

	"optimus/internal/job"
	"optimus/internal/langconfig"
)

// executionMode is the EXECUTION_MODE env value recognized by the in-container
// runner, per spec.md §6.
type executionMode string

const (
	modeCompileAndRun executionMode = "compile_and_run"
	modeCompile       executionMode = "compile"
	modeExecute       executionMode = "execute"
)

// buildEnv constructs the runner protocol environment for one exec call, per
// spec.md §6: LANGUAGE, EXECUTION_MODE, SOURCE_CODE (base64, required for
// compile_and_run/compile), TEST_INPUT (base64, empty allowed).
func buildEnv(lang job.Language, mode executionMode, source, testInput []byte) []string {
	// SOURCE_CODE is always set: required for compile_and_run/compile per
	// spec.md §6, and needed on every execute call for interpreted languages,
	// which write the source on first execute and re-write (idempotently) on
	// later ones rather than persisting it separately from /code's artifact.
	return []string{
		"LANGUAGE=" + string(lang),
		"EXECUTION_MODE=" + string(mode),
		"TEST_INPUT=" + base64.StdEncoding.EncodeToString(testInput),
		"SOURCE_CODE=" + base64.StdEncoding.EncodeToString(source),
	}
}

// runnerCommand resolves the shell command the driver execs inside the
// container for a given policy and mode. The per-language runner scripts
// themselves are an external collaborator (spec.md §1); this command is the
// thin glue that decodes SOURCE_CODE into the file the policy's compile/
// execute commands expect, then invokes them — a table lookup on the policy
// record, never a switch on language name, per spec.md §9.
func runnerCommand(p langconfig.Policy, mode executionMode) []string {
	writeSource := fmt.Sprintf(`echo "$SOURCE_CODE" | base64 -d > %s`, p.SourceFilePath())

	switch mode {
	case modeCompile:
		return []string{"sh", "-c", fmt.Sprintf("%s && %s", writeSource, p.CompileCmd)}
	case modeCompileAndRun:
		if p.Compiled() {
			// A failed compile exits 2, the code looksLikeCompileFailure checks.
			return []string{"sh", "-c", fmt.Sprintf("%s && { %s || exit 2; } && %s", writeSource, p.CompileCmd, p.ExecuteCmd)}
		}
		return []string{"sh", "-c", fmt.Sprintf("%s && %s", writeSource, p.ExecuteCmd)}
	case modeExecute:
		if p.Compiled() {
			// Artifact already persisted under /code from S1; no rewrite needed.
			return []string{"sh", "-c", p.ExecuteCmd}
		}
		// Interpreted languages write the source on the first execute
		// (idempotent on later tests), per spec.md §4.2.
		return []string{"sh", "-c", fmt.Sprintf("%s && %s", writeSource, p.ExecuteCmd)}
	default:
		return []string{"sh", "-c", p.ExecuteCmd}
	}
}
