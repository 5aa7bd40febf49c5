package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Unanswered marks a skipped quiz question
const Unanswered = -1

// TechnicalPayload holds the chosen option index per question
type TechnicalPayload struct {
	Answers []int `json:"answers"`
}

// Technical is the multiple-choice screening quiz
type Technical struct {
	canceller
	session   *models.SessionContext
	threshold float64
}

// NewTechnical creates the quiz stage
func NewTechnical(sc *models.SessionContext, threshold float64) *Technical {
	return &Technical{
		canceller: newCanceller(),
		session:   sc,
		threshold: threshold,
	}
}

// Name returns the stage name
func (t *Technical) Name() models.StageName {
	return models.StageTechnical
}

// Run grades the answers as a percentage of correct choices
func (t *Technical) Run(ctx context.Context, payload json.RawMessage) (Outcome, error) {
	var p TechnicalPayload
	if err := decodePayload(payload, &p); err != nil {
		return Outcome{}, err
	}

	questions := t.session.QuestionSet.Technical.Questions
	if len(p.Answers) > len(questions) {
		return Outcome{}, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidPayload, len(p.Answers), len(questions))
	}

	correct := 0
	for i, answer := range p.Answers {
		if answer == Unanswered {
			continue
		}
		if answer < 0 || answer >= len(questions[i].Options) {
			return Outcome{}, fmt.Errorf("%w: answer %d to question %d is not an option", ErrInvalidPayload, answer, i)
		}
		if answer == questions[i].Answer {
			correct++
		}
	}

	var score float64
	if len(questions) > 0 {
		score = round2(float64(correct) * 100 / float64(len(questions)))
	}

	return Outcome{
		Score:  score,
		Passed: score >= t.threshold,
	}, nil
}
