package models

import (
	"time"
)

// TaskKind distinguishes executable coding tasks from visual ones
type TaskKind string

const (
	TaskProgram TaskKind = "program" // graded against test cases
	TaskVisual  TaskKind = "visual"  // markup/styling document, always accepted
)

// QuestionSet is the communication, technical and coding payload for one session
type QuestionSet struct {
	ID            string               `yaml:"id" json:"id"`
	Title         string               `yaml:"title" json:"title"`
	Description   string               `yaml:"description" json:"description"`
	Proctored     bool                 `yaml:"proctored" json:"proctored"`
	Communication CommunicationSection `yaml:"communication" json:"communication"`
	Technical     TechnicalSection     `yaml:"technical" json:"technical"`
	Coding        CodingSection        `yaml:"coding" json:"coding"`
}

// TimeLimit returns the countdown for a stage, zero meaning no limit
func (q *QuestionSet) TimeLimit(stage StageName) time.Duration {
	switch stage {
	case StageCommunication:
		return q.Communication.TimeLimit
	case StageTechnical:
		return q.Technical.TimeLimit
	case StageCoding:
		return q.Coding.TimeLimit
	}
	return 0
}

// CommunicationSection holds spoken-communication prompts
type CommunicationSection struct {
	TimeLimit time.Duration `yaml:"time_limit" json:"time_limit"`
	Prompts   []string      `yaml:"prompts" json:"prompts"`
}

// TechnicalSection holds the multiple-choice screening quiz
type TechnicalSection struct {
	TimeLimit time.Duration `yaml:"time_limit" json:"time_limit"`
	Questions []Question    `yaml:"questions" json:"questions"`
}

// Question is a single multiple-choice item
type Question struct {
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []string `yaml:"options" json:"options"`
	Answer  int      `yaml:"answer" json:"-"` // Never serialize
}

// CodingSection holds the hands-on coding tasks
type CodingSection struct {
	TimeLimit time.Duration `yaml:"time_limit" json:"time_limit"`
	Tasks     []CodingTask  `yaml:"tasks" json:"tasks"`
}

// CodingTask is one coding exercise
type CodingTask struct {
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description" json:"description"`
	Kind        TaskKind   `yaml:"kind" json:"kind"`
	Languages   []string   `yaml:"languages" json:"languages"`
	Starter     string     `yaml:"starter" json:"starter,omitempty"`
	Examples    []TestCase `yaml:"examples" json:"examples,omitempty"`
	TestCases   []TestCase `yaml:"test_cases" json:"-"` // Never serialize
}

// IsVisual returns true if the task artifact is a non-executable document
func (t *CodingTask) IsVisual() bool {
	return t.Kind == TaskVisual
}

// AllowsLanguage reports whether a language may be used for the task.
// An empty list allows every language in the execution table.
func (t *CodingTask) AllowsLanguage(lang string) bool {
	if len(t.Languages) == 0 {
		return true
	}
	for _, l := range t.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// TestCase is an input and the output a correct program prints for it
type TestCase struct {
	Input    string `yaml:"input" json:"input"`
	Expected string `yaml:"expected" json:"expected"`
}

// QuestionSetSummary is the listing projection of a question set
type QuestionSetSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Proctored   bool   `json:"proctored"`
	Prompts     int    `json:"prompts"`
	Questions   int    `json:"questions"`
	Tasks       int    `json:"tasks"`
}

// Summary returns the listing projection
func (q *QuestionSet) Summary() QuestionSetSummary {
	return QuestionSetSummary{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Proctored:   q.Proctored,
		Prompts:     len(q.Communication.Prompts),
		Questions:   len(q.Technical.Questions),
		Tasks:       len(q.Coding.Tasks),
	}
}
