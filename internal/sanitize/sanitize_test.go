package sanitize

import "testing"

func TestCheckRejectsUniversalPattern(t *testing.T) {
	err := Check("python", []byte("import os\nos.system('rm -rf /')\nexec.Command('ls')"), 0)
	if err == nil {
		t.Fatal("expected a violation for exec.Command usage")
	}
}

func TestCheckRejectsPerLanguagePattern(t *testing.T) {
	err := Check("python", []byte("import subprocess\nsubprocess.run(['ls'])"), 0)
	if err == nil {
		t.Fatal("expected a violation for importing subprocess")
	}
}

func TestCheckAllowsBenignSource(t *testing.T) {
	err := Check("python", []byte("print(input())"), 0)
	if err != nil {
		t.Fatalf("expected no violation, got %v", err)
	}
}

func TestCheckEnforcesSizeCap(t *testing.T) {
	err := Check("python", []byte("x = 1"), 2)
	if err == nil {
		t.Fatal("expected a violation for exceeding the size cap")
	}
}

func TestCheckUnknownLanguageOnlyUsesUniversalPatterns(t *testing.T) {
	err := Check("brainfuck", []byte("++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."), 0)
	if err != nil {
		t.Fatalf("unconfigured language should only be scanned for universal patterns, got %v", err)
	}
}
