// Package stages implements the independently scored assessment phases.
// The session controller drives every stage through the same contract and
// never branches on a stage's name outside its gating table.
package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Common errors
var (
	ErrInvalidPayload = errors.New("invalid stage payload")
	ErrUnknownStage   = errors.New("unknown stage")
	ErrTaskNotFound   = errors.New("coding task not found")
	ErrNotInteractive = errors.New("stage does not accept interactive runs")
)

// Stage is one scoreable phase
type Stage interface {
	Name() models.StageName
	// Run grades the participant's final payload
	Run(ctx context.Context, payload json.RawMessage) (Outcome, error)
	// Cancel aborts any in-flight Run or Interact call
	Cancel()
}

// Interactive stages accept ungraded runs before the final submission
type Interactive interface {
	Interact(ctx context.Context, payload json.RawMessage) (any, error)
}

// Outcome is what a stage reports back to the controller
type Outcome struct {
	Score       float64             `json:"score"`
	Passed      bool                `json:"passed"`
	Submissions []models.Submission `json:"submissions,omitempty"`
}

// Thresholds decide each stage's pass flag
type Thresholds struct {
	CommunicationPass float64
	TechnicalPass     float64
	CodingPass        float64
}

// Factory builds stage instances bound to one session
type Factory struct {
	analyzer   Analyzer
	runner     CodeRunner
	thresholds Thresholds
}

// NewFactory creates a stage factory
func NewFactory(analyzer Analyzer, runner CodeRunner, thresholds Thresholds) *Factory {
	return &Factory{
		analyzer:   analyzer,
		runner:     runner,
		thresholds: thresholds,
	}
}

// New creates the named stage for a session
func (f *Factory) New(name models.StageName, sc *models.SessionContext) (Stage, error) {
	if sc == nil || sc.QuestionSet == nil {
		return nil, fmt.Errorf("stage %s needs a question set", name)
	}

	switch name {
	case models.StageCommunication:
		return NewCommunication(sc, f.analyzer, f.thresholds.CommunicationPass), nil
	case models.StageTechnical:
		return NewTechnical(sc, f.thresholds.TechnicalPass), nil
	case models.StageCoding:
		return NewCoding(sc, f.runner, f.thresholds.CodingPass), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
}

// canceller ties per-call contexts to the stage lifetime
type canceller struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newCanceller() canceller {
	ctx, cancel := context.WithCancel(context.Background())
	return canceller{ctx: ctx, cancel: cancel}
}

// bind returns a context cancelled by either the caller or Cancel
func (c canceller) bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c canceller) Cancel() {
	c.cancel()
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// round2 rounds a percentage to two decimals
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return round2(sum / float64(len(scores)))
}
