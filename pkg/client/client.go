package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/assessment-engine/internal/evaluator"
	"github.com/terra-clan/assessment-engine/internal/models"
)

// Client is a Go SDK for the assessment-engine participant API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new client authenticating with a participant token
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the service. Data holds the
// session view when the session advanced despite the error.
type APIError struct {
	Status  int
	Code    string
	Message string
	Data    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.Status, e.Code, e.Message)
}

// Session decodes the session view attached to the error, if any
func (e *APIError) Session() (*models.SessionView, bool) {
	if len(e.Data) == 0 {
		return nil, false
	}
	var view models.SessionView
	if err := json.Unmarshal(e.Data, &view); err != nil || view.SessionID == "" {
		return nil, false
	}
	return &view, true
}

// IsCode reports whether err is an API error with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Outcome is the score a stage submission earned
type Outcome struct {
	Score       float64             `json:"score"`
	Passed      bool                `json:"passed"`
	Submissions []models.Submission `json:"submissions,omitempty"`
}

// SubmitResult is the response of a stage submission
type SubmitResult struct {
	Session models.SessionView `json:"session"`
	Outcome Outcome            `json:"outcome"`
}

// CodeRun is one coding task run request
type CodeRun struct {
	TaskIndex int    `json:"task_index"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListQuestionSets lists the available question sets
func (c *Client) ListQuestionSets(ctx context.Context) ([]models.QuestionSetSummary, error) {
	var data struct {
		QuestionSets []models.QuestionSetSummary `json:"question_sets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/question-sets", nil, &data); err != nil {
		return nil, err
	}
	return data.QuestionSets, nil
}

// GetQuestionSet retrieves a question set without its answers
func (c *Client) GetQuestionSet(ctx context.Context, id string) (*models.QuestionSet, error) {
	var qs models.QuestionSet
	if err := c.do(ctx, http.MethodGet, "/api/v1/question-sets/"+url.PathEscape(id), nil, &qs); err != nil {
		return nil, err
	}
	return &qs, nil
}

// Start starts an assessment. An empty question set id picks one at random.
func (c *Client) Start(ctx context.Context, questionSetID string) (*models.SessionView, error) {
	var view models.SessionView
	req := models.StartRequest{QuestionSetID: questionSetID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/assessments", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Get retrieves an assessment
func (c *Client) Get(ctx context.Context, id string) (*models.SessionView, error) {
	var view models.SessionView
	if err := c.do(ctx, http.MethodGet, assessmentPath(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// History lists the participant's assessments, most recent first
func (c *Client) History(ctx context.Context, limit, offset int) ([]models.SessionView, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	path := "/api/v1/assessments"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var data struct {
		Assessments []models.SessionView `json:"assessments"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.Assessments, nil
}

// EnterStage starts a stage from the dashboard
func (c *Client) EnterStage(ctx context.Context, id string, stage models.StageName) (*models.SessionView, error) {
	var view models.SessionView
	path := fmt.Sprintf("%s/stages/%s/enter", assessmentPath(id), stage)
	if err := c.do(ctx, http.MethodPost, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Submit sends the final payload of the active stage
func (c *Client) Submit(ctx context.Context, id string, stage models.StageName, payload interface{}) (*SubmitResult, error) {
	var result SubmitResult
	path := fmt.Sprintf("%s/stages/%s/submit", assessmentPath(id), stage)
	if err := c.do(ctx, http.MethodPost, path, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Run runs code for a coding task without grading it
func (c *Client) Run(ctx context.Context, id string, run CodeRun) (*evaluator.Report, error) {
	var report evaluator.Report
	if err := c.do(ctx, http.MethodPost, assessmentPath(id)+"/run", run, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Exit leaves an assessment. While proctoring is active confirm must be set.
func (c *Client) Exit(ctx context.Context, id string, confirm bool) (*models.SessionView, error) {
	var view models.SessionView
	req := models.ExitRequest{Confirm: confirm}
	if err := c.do(ctx, http.MethodPost, assessmentPath(id)+"/exit", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func assessmentPath(id string) string {
	return "/api/v1/assessments/" + url.PathEscape(id)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs an HTTP request and decodes the response envelope into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result envelope
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: "http_error", Message: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Data: result.Data}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return apiErr
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}
