package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/terra-clan/assessment-engine/internal/failure"
)

// Analyzer scores one spoken response
type Analyzer interface {
	Score(ctx context.Context, credential, prompt, transcript string) (float64, error)
}

// AnalysisClient calls the backend speech analysis service with the
// participant's bearer credential
type AnalysisClient struct {
	endpoint   string
	httpClient *http.Client
}

// AnalysisOption configures the analysis client
type AnalysisOption func(*AnalysisClient)

// WithAnalysisHTTPClient sets a custom HTTP client
func WithAnalysisHTTPClient(client *http.Client) AnalysisOption {
	return func(c *AnalysisClient) {
		c.httpClient = client
	}
}

// WithAnalysisTimeout sets the per-request timeout
func WithAnalysisTimeout(timeout time.Duration) AnalysisOption {
	return func(c *AnalysisClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewAnalysisClient creates an analysis client
func NewAnalysisClient(endpoint string, opts ...AnalysisOption) *AnalysisClient {
	c := &AnalysisClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type analysisRequest struct {
	Prompt     string `json:"prompt"`
	Transcript string `json:"transcript"`
}

type analysisResponse struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback,omitempty"`
}

// Score returns a 0..100 rating of the transcript
func (c *AnalysisClient) Score(ctx context.Context, credential, prompt, transcript string) (float64, error) {
	body, err := json.Marshal(analysisRequest{Prompt: prompt, Transcript: transcript})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, failure.Wrap(err, failure.KindConnectivity, "speech analysis service is unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, failure.Wrap(err, failure.KindConnectivity, "failed to read speech analysis response")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, failure.Newf(failure.KindConnectivity, "speech analysis service returned status %d", resp.StatusCode)
	}

	var ar analysisResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return 0, failure.Wrap(err, failure.KindConnectivity, "speech analysis service sent a malformed response")
	}
	if ar.Score == nil {
		return 0, failure.New(failure.KindConnectivity, "speech analysis service sent no score")
	}

	return clamp(*ar.Score), nil
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
