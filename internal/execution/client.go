// Package execution is the boundary to the external code-execution service.
// The service is untrusted and best-effort: every transport problem or
// malformed reply degrades to a connectivity failure.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/terra-clan/assessment-engine/internal/failure"
)

// maxResponseBytes bounds how much of a reply is read
const maxResponseBytes = 4 << 20

// Request is one program execution
type Request struct {
	Language string
	Source   string
	Stdin    string
}

// CompileOutput is the compile step of an execution, present only for compiled languages
type CompileOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Result is the raw outcome of an execution
type Result struct {
	Stdout   string         `json:"stdout"`
	Stderr   string         `json:"stderr"`
	ExitCode int            `json:"exit_code"`
	Signal   string         `json:"signal,omitempty"`
	Compile  *CompileOutput `json:"compile,omitempty"`
}

// Client calls the external code-execution service
type Client struct {
	endpoint   string
	languages  *Languages
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

// WithTimeout sets the per-execution timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a client posting to the service execute endpoint
func NewClient(endpoint string, languages *Languages, opts ...Option) *Client {
	c := &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		languages: languages,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Wire format of the execution service

type wireFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type wireRequest struct {
	Language string     `json:"language"`
	Version  string     `json:"version"`
	Files    []wireFile `json:"files"`
	Stdin    string     `json:"stdin"`
}

type wireStage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

type wireResponse struct {
	Compile *wireStage `json:"compile"`
	Run     *wireStage `json:"run"`
	Message string     `json:"message"`
}

// Execute runs source once with the given stdin. It never retries; a nil
// result always comes with a connectivity failure.
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	lang, err := c.languages.Lookup(req.Language)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(wireRequest{
		Language: lang.Runtime,
		Version:  lang.Version,
		Files:    []wireFile{{Name: lang.FileName, Content: req.Source}},
		Stdin:    req.Stdin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, failure.Wrap(err, failure.KindConnectivity, "code execution service is unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, failure.Wrap(err, failure.KindConnectivity, "failed to read code execution response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("execution service returned error status",
			"status", resp.StatusCode,
			"language", req.Language,
		)
		return nil, failure.Newf(failure.KindConnectivity, "code execution service returned status %d", resp.StatusCode)
	}

	var wr wireResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return nil, failure.Wrap(err, failure.KindConnectivity, "code execution service sent a malformed response")
	}
	if wr.Run == nil {
		reason := "code execution service sent no run result"
		if wr.Message != "" {
			reason = fmt.Sprintf("%s: %s", reason, wr.Message)
		}
		return nil, failure.New(failure.KindConnectivity, reason)
	}

	res := &Result{
		Stdout: wr.Run.Stdout,
		Stderr: wr.Run.Stderr,
	}
	if wr.Run.Code != nil {
		res.ExitCode = *wr.Run.Code
	}
	if wr.Run.Signal != nil {
		res.Signal = *wr.Run.Signal
	}
	if wr.Compile != nil {
		res.Compile = &CompileOutput{
			Stdout: wr.Compile.Stdout,
			Stderr: wr.Compile.Stderr,
		}
		if wr.Compile.Code != nil {
			res.Compile.ExitCode = *wr.Compile.Code
		}
	}

	slog.Debug("execution finished",
		"language", req.Language,
		"exit_code", res.ExitCode,
		"signal", res.Signal,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return res, nil
}

// Ping checks the execution service runtimes endpoint
func (c *Client) Ping(ctx context.Context) error {
	url := strings.TrimSuffix(c.endpoint, "/execute") + "/runtimes"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execution service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("execution service returned status %d", resp.StatusCode)
	}
	return nil
}
