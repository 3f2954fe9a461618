package langconfig

import "testing"

func TestLoadDefaultCoversCompiledAndInterpreted(t *testing.T) {
	mgr := LoadDefault()

	python, ok := mgr.Get("python")
	if !ok {
		t.Fatal("expected python policy to be present")
	}
	if python.Compiled() {
		t.Error("python should not be marked compiled")
	}

	goLang, ok := mgr.Get("go")
	if !ok {
		t.Fatal("expected go policy to be present")
	}
	if !goLang.Compiled() {
		t.Error("go should be marked compiled (has a compile_cmd)")
	}
}

func TestGetUnknownLanguage(t *testing.T) {
	mgr := LoadDefault()
	if _, ok := mgr.Get("cobol"); ok {
		t.Error("expected cobol to be absent from the default registry")
	}
}

func TestLanguagesNonEmpty(t *testing.T) {
	mgr := LoadDefault()
	if len(mgr.Languages()) == 0 {
		t.Error("expected at least one configured language")
	}
}
