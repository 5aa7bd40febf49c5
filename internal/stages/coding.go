package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/terra-clan/assessment-engine/internal/evaluator"
	"github.com/terra-clan/assessment-engine/internal/failure"
	"github.com/terra-clan/assessment-engine/internal/models"
)

// Scores a coding task can earn
const (
	TaskFailed   = 0.0
	TaskAccepted = 100.0
)

// CodeRunner evaluates code against test cases, or runs it as a playground
type CodeRunner interface {
	Run(ctx context.Context, source, language string, cases []models.TestCase) (*evaluator.Report, error)
}

// CodeSubmission is the code for one task
type CodeSubmission struct {
	TaskIndex int    `json:"task_index"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

// CodingPayload is the final submission for every task
type CodingPayload struct {
	Submissions []CodeSubmission `json:"submissions"`
}

// Coding is the hands-on coding stage
type Coding struct {
	canceller
	session   *models.SessionContext
	runner    CodeRunner
	threshold float64
}

// NewCoding creates the coding stage
func NewCoding(sc *models.SessionContext, runner CodeRunner, threshold float64) *Coding {
	return &Coding{
		canceller: newCanceller(),
		session:   sc,
		runner:    runner,
		threshold: threshold,
	}
}

// Name returns the stage name
func (c *Coding) Name() models.StageName {
	return models.StageCoding
}

func (c *Coding) task(sub CodeSubmission) (*models.CodingTask, error) {
	tasks := c.session.QuestionSet.Coding.Tasks
	if sub.TaskIndex < 0 || sub.TaskIndex >= len(tasks) {
		return nil, fmt.Errorf("%w: index %d", ErrTaskNotFound, sub.TaskIndex)
	}
	task := &tasks[sub.TaskIndex]
	if !task.IsVisual() && !task.AllowsLanguage(sub.Language) {
		return nil, fmt.Errorf("%w: language %q is not allowed for task %d", ErrInvalidPayload, sub.Language, sub.TaskIndex)
	}
	return task, nil
}

// Interact runs code for one task without grading it. Visual tasks are
// echoed back as a preview; tasks without cases run in playground mode.
func (c *Coding) Interact(ctx context.Context, payload json.RawMessage) (any, error) {
	var sub CodeSubmission
	if err := decodePayload(payload, &sub); err != nil {
		return nil, err
	}
	task, err := c.task(sub)
	if err != nil {
		return nil, err
	}

	if task.IsVisual() {
		return &evaluator.Report{
			Mode:       "playground",
			Playground: &evaluator.PlaygroundResult{Stdout: sub.Code, Preview: sub.Code},
		}, nil
	}

	ctx, cancel := c.bind(ctx)
	defer cancel()
	report, err := c.runner.Run(ctx, sub.Code, sub.Language, task.TestCases)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Run grades the final submissions. A program task scores 100 only when
// every case passes. A connectivity failure aborts the whole submission so
// it can be retried.
func (c *Coding) Run(ctx context.Context, payload json.RawMessage) (Outcome, error) {
	var p CodingPayload
	if err := decodePayload(payload, &p); err != nil {
		return Outcome{}, err
	}

	tasks := c.session.QuestionSet.Coding.Tasks
	byTask := make(map[int]CodeSubmission, len(p.Submissions))
	for _, sub := range p.Submissions {
		if _, err := c.task(sub); err != nil {
			return Outcome{}, err
		}
		byTask[sub.TaskIndex] = sub
	}

	ctx, cancel := c.bind(ctx)
	defer cancel()

	scores := make([]float64, len(tasks))
	submissions := make([]models.Submission, 0, len(byTask))
	for i := range tasks {
		sub, ok := byTask[i]
		if !ok {
			continue
		}
		score, err := c.grade(ctx, &tasks[i], sub)
		if err != nil {
			return Outcome{}, err
		}
		scores[i] = score
		submissions = append(submissions, models.Submission{
			TaskIndex: i,
			Language:  sub.Language,
			Code:      sub.Code,
			Score:     score,
		})
	}

	score := mean(scores)
	slog.Info("coding stage scored",
		"session_id", c.session.SessionID,
		"score", score,
		"submitted", len(submissions),
	)

	return Outcome{
		Score:       score,
		Passed:      score >= c.threshold,
		Submissions: submissions,
	}, nil
}

// grade scores one task
func (c *Coding) grade(ctx context.Context, task *models.CodingTask, sub CodeSubmission) (float64, error) {
	if task.IsVisual() {
		return TaskAccepted, nil
	}

	report, err := c.runner.Run(ctx, sub.Code, sub.Language, task.TestCases)
	if err != nil {
		return TaskFailed, err
	}

	var diag *evaluator.Error
	switch report.Mode {
	case "playground":
		if report.Playground != nil {
			diag = report.Playground.Diagnostic
		}
	default:
		diag = report.Error
	}

	if diag != nil {
		if diag.Kind == failure.KindConnectivity {
			return TaskFailed, failure.New(failure.KindConnectivity, diag.Message)
		}
		return TaskFailed, nil
	}

	if report.Mode == "playground" || report.AllPassed() {
		return TaskAccepted, nil
	}
	return TaskFailed, nil
}
