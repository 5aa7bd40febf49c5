package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedLanguage is returned for a language missing from the table
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language maps a logical language name to the runtime that executes it
type Language struct {
	Name     string `yaml:"name" json:"name"`
	Runtime  string `yaml:"runtime" json:"runtime"`
	Version  string `yaml:"version" json:"version"`
	FileName string `yaml:"file_name" json:"file_name"`
}

// defaultLanguages is the built-in table; a languages file may override or extend it
var defaultLanguages = []Language{
	{Name: "python", Runtime: "python", Version: "3.10.0", FileName: "main.py"},
	{Name: "javascript", Runtime: "javascript", Version: "18.15.0", FileName: "index.js"},
	{Name: "typescript", Runtime: "typescript", Version: "5.0.3", FileName: "index.ts"},
	{Name: "java", Runtime: "java", Version: "15.0.2", FileName: "Main.java"},
	{Name: "cpp", Runtime: "c++", Version: "10.2.0", FileName: "main.cpp"},
	{Name: "c", Runtime: "c", Version: "10.2.0", FileName: "main.c"},
	{Name: "go", Runtime: "go", Version: "1.16.2", FileName: "main.go"},
}

// Languages is the language table
type Languages struct {
	mu    sync.RWMutex
	table map[string]Language
}

// NewLanguages creates a table holding the built-in languages
func NewLanguages() *Languages {
	l := &Languages{table: make(map[string]Language, len(defaultLanguages))}
	for _, lang := range defaultLanguages {
		l.table[lang.Name] = lang
	}
	return l
}

// languagesFile represents the YAML structure of a languages file
type languagesFile struct {
	Languages []Language `yaml:"languages"`
}

// LoadFromFile merges languages from a YAML file into the table
func (l *Languages) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read languages file: %w", err)
	}

	var lf languagesFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return fmt.Errorf("failed to parse languages file: %w", err)
	}

	for i, lang := range lf.Languages {
		if lang.Name == "" || lang.Runtime == "" || lang.FileName == "" {
			return fmt.Errorf("language #%d: name, runtime and file_name are required", i)
		}
		if lang.Version == "" {
			lang.Version = "*"
		}
		l.Add(lang)
	}

	slog.Info("languages loaded", "file", path, "count", len(lf.Languages))
	return nil
}

// Add registers or replaces a language
func (l *Languages) Add(lang Language) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table[lang.Name] = lang
}

// Lookup returns the language registered under name
func (l *Languages) Lookup(name string) (Language, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lang, ok := l.table[name]
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, name)
	}
	return lang, nil
}

// List returns all languages sorted by name
func (l *Languages) List() []Language {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Language, 0, len(l.table))
	for _, lang := range l.table {
		result = append(result, lang)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
