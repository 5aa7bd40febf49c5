package execution

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLanguagesDefaults(t *testing.T) {
	langs := NewLanguages()

	py, err := langs.Lookup("python")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if py.Runtime != "python" || py.FileName != "main.py" {
		t.Errorf("python = %+v", py)
	}

	if _, err := langs.Lookup("brainfuck"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestLanguagesLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	content := `languages:
  - name: python
    runtime: python
    version: 3.12.0
    file_name: solution.py
  - name: rust
    runtime: rust
    file_name: main.rs
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	langs := NewLanguages()
	if err := langs.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	py, _ := langs.Lookup("python")
	if py.Version != "3.12.0" || py.FileName != "solution.py" {
		t.Errorf("python override not applied: %+v", py)
	}

	rust, err := langs.Lookup("rust")
	if err != nil {
		t.Fatalf("rust missing: %v", err)
	}
	if rust.Version != "*" {
		t.Errorf("expected default version '*', got %q", rust.Version)
	}

	names := langs.List()
	for i := 1; i < len(names); i++ {
		if names[i-1].Name > names[i].Name {
			t.Fatal("List() not sorted")
		}
	}
}

func TestLanguagesLoadRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	os.WriteFile(path, []byte("languages:\n  - name: ruby\n"), 0o644)

	if err := NewLanguages().LoadFromFile(path); err == nil {
		t.Fatal("expected validation error")
	}
}
