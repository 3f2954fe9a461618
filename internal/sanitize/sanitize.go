// Package sanitize is a best-effort static pre-flight scan over submitted
// source, run by the Dispatcher before a job ever reaches a container.
// It is deliberately a secondary defense: spec.md's real isolation boundary
// is the Container Driver's NetworkMode:"none"/resource-limited sandbox, not
// this regex scan, so patterns here exist to reject obviously hostile
// submissions early rather than to exhaustively police arbitrary code.
//
// Consolidates the teacher's two near-duplicate scanners (internal/sanitize.go
// and pkg/sanitize.go) into one per-language pattern table.
package sanitize

import (
	"fmt"
	"regexp"

	"optimus/internal/job"
)

// Violation is returned when source trips a restricted pattern.
type Violation struct {
	Reason string
	Detail string
}

func (v *Violation) Error() string {
	return v.Reason + ": " + v.Detail
}

var universalPatterns = []string{
	`(?i)(os\.Remove|os\.RemoveAll)`,
	`(?i)(exec\.Command|subprocess|child_process|popen|std::system)`,
	`(?i)(syscall\.Exec)`,
}

var perLanguagePatterns = map[job.Language][]string{
	"python": {
		`import\s+subprocess`,
		`import\s+shutil`,
		`import\s+ctypes`,
		`__import__\(['"]os['"]`,
	},
	"javascript": {
		`require\(['"]fs['"]\)`,
		`require\(['"]child_process['"]\)`,
		`require\(['"]net['"]\)`,
	},
	"go": {
		`"syscall"`,
		`"unsafe"`,
		`"plugin"`,
	},
	"cpp": {
		`\bfork\(\)`,
		`\bpopen\(`,
	},
}

// Check scans source for the restricted patterns registered for lang,
// returning a *Violation if one matches. An unmatched language is not an
// error: languages outside this table simply receive the universal scan.
func Check(lang job.Language, source []byte, maxLen int) error {
	if maxLen > 0 && len(source) > maxLen {
		return &Violation{Reason: "source exceeds size cap", Detail: fmt.Sprintf("max %d bytes", maxLen)}
	}

	code := string(source)
	if matched, pattern := matchAny(universalPatterns, code); matched {
		return &Violation{Reason: "prohibited system operation", Detail: pattern}
	}

	if patterns, ok := perLanguagePatterns[lang]; ok {
		if matched, pattern := matchAny(patterns, code); matched {
			return &Violation{Reason: "prohibited " + string(lang) + " operation", Detail: pattern}
		}
	}

	return nil
}

func matchAny(patterns []string, code string) (bool, string) {
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(code) {
			return true, p
		}
	}
	return false, ""
}
