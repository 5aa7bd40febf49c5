// Package questionsets loads assessment content from YAML files.
package questionsets

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Loader manages loading and caching of question sets
type Loader struct {
	mu   sync.RWMutex
	sets map[string]*models.QuestionSet
}

// NewLoader creates a new question set loader
func NewLoader() *Loader {
	return &Loader{
		sets: make(map[string]*models.QuestionSet),
	}
}

// LoadFromDir loads every YAML question set in dir and its direct
// subdirectories. Invalid files are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading question sets from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("question sets directory: %w", err)
	}

	patterns := []string{"*.yaml", "*.yml"}
	var files []string
	for _, pattern := range patterns {
		if matches, err := filepath.Glob(filepath.Join(dir, pattern)); err == nil {
			files = append(files, matches...)
		}
		if matches, err := filepath.Glob(filepath.Join(dir, "*", pattern)); err == nil {
			files = append(files, matches...)
		}
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load question set", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("question sets loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single question set from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	qs, err := Parse(data)
	if err != nil {
		return err
	}

	// file name is the fallback id
	if qs.ID == "" {
		base := filepath.Base(path)
		qs.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	l.Add(qs)
	slog.Info("question set loaded", "id", qs.ID, "proctored", qs.Proctored, "tasks", len(qs.Coding.Tasks))
	return nil
}

// Parse decodes and validates a question set document
func Parse(data []byte) (*models.QuestionSet, error) {
	var f questionSetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	qs, err := f.toModel()
	if err != nil {
		return nil, err
	}
	if err := Validate(qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// Validate checks that a question set can be administered
func Validate(qs *models.QuestionSet) error {
	var errs []error

	if qs.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if len(qs.Communication.Prompts) == 0 {
		errs = append(errs, errors.New("communication needs at least one prompt"))
	}
	for i, p := range qs.Communication.Prompts {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("communication prompt %d is empty", i))
		}
	}

	if len(qs.Technical.Questions) == 0 {
		errs = append(errs, errors.New("technical needs at least one question"))
	}
	for i, q := range qs.Technical.Questions {
		if len(q.Options) < 2 {
			errs = append(errs, fmt.Errorf("question %d needs at least two options", i))
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			errs = append(errs, fmt.Errorf("question %d answer %d is not an option", i, q.Answer))
		}
	}

	if len(qs.Coding.Tasks) == 0 {
		errs = append(errs, errors.New("coding needs at least one task"))
	}
	for i, t := range qs.Coding.Tasks {
		if t.Title == "" {
			errs = append(errs, fmt.Errorf("task %d title is required", i))
		}
		switch t.Kind {
		case models.TaskProgram, models.TaskVisual:
		default:
			errs = append(errs, fmt.Errorf("task %d has unknown kind %q", i, t.Kind))
		}
	}

	for _, stage := range models.StageOrder {
		if qs.TimeLimit(stage) < 0 {
			errs = append(errs, fmt.Errorf("%s time limit is negative", stage))
		}
	}

	return errors.Join(errs...)
}

// Get retrieves a question set by id
func (l *Loader) Get(id string) *models.QuestionSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sets[id]
}

// List returns all loaded question sets ordered by id
func (l *Loader) List() []*models.QuestionSet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.QuestionSet, 0, len(l.sets))
	for _, qs := range l.sets {
		result = append(result, qs)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Pick returns a random question set, or nil when none are loaded
func (l *Loader) Pick() *models.QuestionSet {
	sets := l.List()
	if len(sets) == 0 {
		return nil
	}
	return sets[rand.Intn(len(sets))]
}

// Add programmatically adds a question set
func (l *Loader) Add(qs *models.QuestionSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sets[qs.ID] = qs
}

// Remove removes a question set by id
func (l *Loader) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sets, id)
}

// --- YAML file structs ---

type questionSetFile struct {
	ID            string            `yaml:"id"`
	Title         string            `yaml:"title"`
	Description   string            `yaml:"description"`
	Proctored     bool              `yaml:"proctored"`
	Communication communicationFile `yaml:"communication"`
	Technical     technicalFile     `yaml:"technical"`
	Coding        codingFile        `yaml:"coding"`
}

type communicationFile struct {
	TimeLimit string   `yaml:"time_limit"`
	Prompts   []string `yaml:"prompts"`
}

type technicalFile struct {
	TimeLimit string            `yaml:"time_limit"`
	Questions []models.Question `yaml:"questions"`
}

type codingFile struct {
	TimeLimit string              `yaml:"time_limit"`
	Tasks     []models.CodingTask `yaml:"tasks"`
}

func (f *questionSetFile) toModel() (*models.QuestionSet, error) {
	commLimit, err := parseLimit("communication", f.Communication.TimeLimit)
	if err != nil {
		return nil, err
	}
	techLimit, err := parseLimit("technical", f.Technical.TimeLimit)
	if err != nil {
		return nil, err
	}
	codingLimit, err := parseLimit("coding", f.Coding.TimeLimit)
	if err != nil {
		return nil, err
	}

	tasks := f.Coding.Tasks
	for i := range tasks {
		if tasks[i].Kind == "" {
			tasks[i].Kind = models.TaskProgram
		}
	}

	return &models.QuestionSet{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Proctored:   f.Proctored,
		Communication: models.CommunicationSection{
			TimeLimit: commLimit,
			Prompts:   f.Communication.Prompts,
		},
		Technical: models.TechnicalSection{
			TimeLimit: techLimit,
			Questions: f.Technical.Questions,
		},
		Coding: models.CodingSection{
			TimeLimit: codingLimit,
			Tasks:     tasks,
		},
	}, nil
}

// parseLimit reads a stage time limit such as "15m"; empty means no limit
func parseLimit(stage, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s time_limit %q: %w", stage, raw, err)
	}
	return d, nil
}
