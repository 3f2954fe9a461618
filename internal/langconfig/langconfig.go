// Package langconfig is the per-language policy registry: spec.md §9
// requires each language be represented as a record looked up by tag, never
// as a control-flow switch. Grounded on the original worker's
// LanguageConfigManager, which loads the same shape from a JSON file.
package langconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"optimus/internal/job"
)

// Policy is the per-language record of spec.md §9:
// {image, file_extension, compile_cmd?, execute_cmd, stdin_piped, mem_default, cpu_default}.
type Policy struct {
	Image          string  `json:"image"`
	FileExtension  string  `json:"file_extension"`
	SourceFile     string  `json:"source_file,omitempty"`
	CompileCmd     string  `json:"compile_cmd,omitempty"`
	ExecuteCmd     string  `json:"execute_cmd"`
	StdinPiped     bool    `json:"stdin_piped"`
	MemDefaultMB   int64   `json:"mem_default_mb"`
	CPUDefaultCore float64 `json:"cpu_default_cores"`
	QueueName      string  `json:"queue_name"`
}

// SourceFilePath resolves the in-container path the decoded SOURCE_CODE is
// written to: the policy-declared SourceFile when the language constrains
// the filename (e.g. Java's public-class-must-match-filename rule), or the
// conventional /code/main.<ext> otherwise.
func (p Policy) SourceFilePath() string {
	if p.SourceFile != "" {
		return "/code/" + p.SourceFile
	}
	return "/code/main." + p.FileExtension
}

// Compiled reports whether this language declares a compile step, per
// spec.md §4.2's "interpreted vs. compiled" rule.
func (p Policy) Compiled() bool {
	return p.CompileCmd != ""
}

// Manager is the loaded, in-process registry of Policy records by language.
type Manager struct {
	policies map[job.Language]Policy
}

// Load reads the policy registry from a JSON file at path.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("langconfig: read %s: %w", path, err)
	}
	var raw map[string]Policy
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("langconfig: parse %s: %w", path, err)
	}
	m := &Manager{policies: make(map[job.Language]Policy, len(raw))}
	for lang, p := range raw {
		m.policies[job.Language(lang)] = p
	}
	return m, nil
}

// LoadDefault returns a built-in registry, used when no config file is
// present (e.g. in tests), covering the same six languages as
// config/languages.json.
func LoadDefault() *Manager {
	return &Manager{policies: map[job.Language]Policy{
		"python": {
			Image:          "optimus-runner-python:latest",
			FileExtension:  "py",
			ExecuteCmd:     "python3 /code/main.py",
			StdinPiped:     true,
			MemDefaultMB:   256,
			CPUDefaultCore: 0.5,
			QueueName:      "queue:python",
		},
		"javascript": {
			Image:          "optimus-runner-node:latest",
			FileExtension:  "js",
			ExecuteCmd:     "node /code/main.js",
			StdinPiped:     true,
			MemDefaultMB:   256,
			CPUDefaultCore: 0.5,
			QueueName:      "queue:javascript",
		},
		"go": {
			Image:          "optimus-runner-go:latest",
			FileExtension:  "go",
			CompileCmd:     "go build -o /code/main /code/main.go",
			ExecuteCmd:     "/code/main",
			StdinPiped:     true,
			MemDefaultMB:   256,
			CPUDefaultCore: 0.5,
			QueueName:      "queue:go",
		},
		"cpp": {
			Image:          "optimus-runner-cpp:latest",
			FileExtension:  "cpp",
			CompileCmd:     "g++ -O2 -o /code/main /code/main.cpp",
			ExecuteCmd:     "/code/main",
			StdinPiped:     true,
			MemDefaultMB:   256,
			CPUDefaultCore: 0.5,
			QueueName:      "queue:cpp",
		},
		"java": {
			Image:          "optimus-runner-java:latest",
			FileExtension:  "java",
			SourceFile:     "Main.java",
			CompileCmd:     "javac -d /code /code/Main.java",
			ExecuteCmd:     "java -cp /code Main",
			StdinPiped:     true,
			MemDefaultMB:   512,
			CPUDefaultCore: 0.5,
			QueueName:      "queue:java",
		},
		"rust": {
			Image:          "optimus-runner-rust:latest",
			FileExtension:  "rs",
			CompileCmd:     "rustc -O -o /code/main /code/main.rs",
			ExecuteCmd:     "/code/main",
			StdinPiped:     true,
			MemDefaultMB:   256,
			CPUDefaultCore: 0.5,
			QueueName:      "queue:rust",
		},
	}}
}

// Get looks up the Policy for a language tag.
func (m *Manager) Get(lang job.Language) (Policy, bool) {
	p, ok := m.policies[lang]
	return p, ok
}

// Languages lists every configured language tag.
func (m *Manager) Languages() []job.Language {
	out := make([]job.Language, 0, len(m.policies))
	for l := range m.policies {
		out = append(out, l)
	}
	return out
}
