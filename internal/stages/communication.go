package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// CommunicationPayload is the final submission of spoken responses
type CommunicationPayload struct {
	Responses []SpokenResponse `json:"responses"`
}

// SpokenResponse is the transcript of one answered prompt
type SpokenResponse struct {
	PromptIndex int    `json:"prompt_index"`
	Transcript  string `json:"transcript"`
}

// Communication scores spoken answers through the analysis service
type Communication struct {
	canceller
	session   *models.SessionContext
	analyzer  Analyzer
	threshold float64
}

// NewCommunication creates the communication stage
func NewCommunication(sc *models.SessionContext, analyzer Analyzer, threshold float64) *Communication {
	return &Communication{
		canceller: newCanceller(),
		session:   sc,
		analyzer:  analyzer,
		threshold: threshold,
	}
}

// Name returns the stage name
func (c *Communication) Name() models.StageName {
	return models.StageCommunication
}

// Run scores every prompt; unanswered prompts score zero
func (c *Communication) Run(ctx context.Context, payload json.RawMessage) (Outcome, error) {
	var p CommunicationPayload
	if err := decodePayload(payload, &p); err != nil {
		return Outcome{}, err
	}

	prompts := c.session.QuestionSet.Communication.Prompts
	transcripts := make(map[int]string, len(p.Responses))
	for _, r := range p.Responses {
		if r.PromptIndex < 0 || r.PromptIndex >= len(prompts) {
			return Outcome{}, fmt.Errorf("%w: prompt index %d out of range", ErrInvalidPayload, r.PromptIndex)
		}
		transcripts[r.PromptIndex] = r.Transcript
	}

	ctx, cancel := c.bind(ctx)
	defer cancel()

	scores := make([]float64, len(prompts))
	for i, prompt := range prompts {
		transcript := strings.TrimSpace(transcripts[i])
		if transcript == "" {
			continue
		}
		score, err := c.analyzer.Score(ctx, c.session.Credential, prompt, transcript)
		if err != nil {
			return Outcome{}, err
		}
		scores[i] = score
	}

	score := mean(scores)
	slog.Info("communication stage scored",
		"session_id", c.session.SessionID,
		"score", score,
		"answered", len(transcripts),
	)

	return Outcome{
		Score:  score,
		Passed: score >= c.threshold,
	}, nil
}
