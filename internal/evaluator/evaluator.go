// Package evaluator grades submitted code against ordered test cases using
// the execution service.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/terra-clan/assessment-engine/internal/execution"
	"github.com/terra-clan/assessment-engine/internal/failure"
	"github.com/terra-clan/assessment-engine/internal/models"
)

// Executor runs a program once
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (*execution.Result, error)
}

// CaseOutcome is the judgement for one test case
type CaseOutcome struct {
	Index    int    `json:"index"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Error is an infrastructure-level failure that halted evaluation at a case
type Error struct {
	Kind      failure.Kind `json:"kind"`
	CaseIndex int          `json:"case_index"`
	Message   string       `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s at case %d: %s", e.Kind, e.CaseIndex, e.Message)
}

// Evaluator runs code against test cases
type Evaluator struct {
	executor  Executor
	languages *execution.Languages
}

// New creates an evaluator
func New(executor Executor, languages *execution.Languages) *Evaluator {
	return &Evaluator{
		executor:  executor,
		languages: languages,
	}
}

// accumulator is the fold state: outcomes so far, or the failure that halted the fold
type accumulator struct {
	outcomes []CaseOutcome
	err      *Error
}

func (a accumulator) halted() bool {
	return a.err != nil
}

// foldCases threads the accumulator through every case in order
func foldCases(cases []models.TestCase, acc accumulator, step func(accumulator, int, models.TestCase) accumulator) accumulator {
	for i, tc := range cases {
		acc = step(acc, i, tc)
	}
	return acc
}

// Evaluate runs every case in order. A mismatch is recorded and evaluation
// continues; a compile, runtime, time-limit or connectivity failure halts it
// and is returned as *Error carrying the offending case index.
func (e *Evaluator) Evaluate(ctx context.Context, source, language string, cases []models.TestCase) ([]CaseOutcome, error) {
	if _, err := e.languages.Lookup(language); err != nil {
		return nil, err
	}

	acc := foldCases(cases, accumulator{outcomes: make([]CaseOutcome, 0, len(cases))},
		func(acc accumulator, i int, tc models.TestCase) accumulator {
			if acc.halted() {
				return acc
			}
			return e.step(ctx, acc, i, source, language, tc)
		})

	if acc.err != nil {
		return nil, acc.err
	}
	return acc.outcomes, nil
}

// step issues the remote call for one case and folds its outcome in
func (e *Evaluator) step(ctx context.Context, acc accumulator, index int, source, language string, tc models.TestCase) accumulator {
	res, err := e.executor.Execute(ctx, execution.Request{
		Language: language,
		Source:   source,
		Stdin:    tc.Input,
	})
	if err == nil {
		err = execution.Classify(res)
	}
	if err != nil {
		acc.err = toError(err, index)
		return acc
	}

	acc.outcomes = append(acc.outcomes, CaseOutcome{
		Index:    index,
		Input:    tc.Input,
		Expected: tc.Expected,
		Actual:   res.Stdout,
		Passed:   Matches(tc.Expected, res.Stdout),
	})
	return acc
}

// toError converts an execution failure into an evaluation error.
// Anything unclassified is treated as a connectivity problem.
func toError(err error, index int) *Error {
	kind, ok := failure.KindOf(err)
	if !ok {
		kind = failure.KindConnectivity
	}
	return &Error{
		Kind:      kind,
		CaseIndex: index,
		Message:   failure.ReasonOf(err),
	}
}

// Matches compares expected and actual output after trimming surrounding
// whitespace. There is no case folding, numeric coercion or normalization
// of inner whitespace.
func Matches(expected, actual string) bool {
	return strings.TrimSpace(expected) == strings.TrimSpace(actual)
}

// PlaygroundResult is the raw output of an ungraded run
type PlaygroundResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Diagnostic *Error `json:"diagnostic,omitempty"`
	Preview    string `json:"preview,omitempty"`
}

// Playground runs the code once with empty input and returns its output
// without judgement. When the output starts with a markup open token it is
// offered back as Preview, unchanged.
func (e *Evaluator) Playground(ctx context.Context, source, language string) (*PlaygroundResult, error) {
	if _, err := e.languages.Lookup(language); err != nil {
		return nil, err
	}

	res, err := e.executor.Execute(ctx, execution.Request{
		Language: language,
		Source:   source,
	})
	if err != nil {
		return &PlaygroundResult{Diagnostic: toError(err, 0)}, nil
	}

	out := &PlaygroundResult{
		Stdout: res.Stdout,
		Stderr: res.Stderr,
	}
	if err := execution.Classify(res); err != nil {
		out.Diagnostic = toError(err, 0)
		if res.Compile != nil && res.Compile.ExitCode != 0 {
			out.Stderr = res.Compile.Stderr
		}
	}
	if LooksLikeMarkup(res.Stdout) {
		out.Preview = res.Stdout
	}
	return out, nil
}

// LooksLikeMarkup reports whether output begins with a markup open token
// such as "<h1", "<!DOCTYPE" or "<div"
func LooksLikeMarkup(output string) bool {
	trimmed := strings.TrimLeftFunc(output, unicode.IsSpace)
	if len(trimmed) < 2 || trimmed[0] != '<' {
		return false
	}
	next := rune(trimmed[1])
	return next == '!' || unicode.IsLetter(next)
}

// Report is what a participant sees after running code
type Report struct {
	Mode       string            `json:"mode"` // tests | playground
	Outcomes   []CaseOutcome     `json:"outcomes,omitempty"`
	Passed     int               `json:"passed"`
	Total      int               `json:"total"`
	Error      *Error            `json:"error,omitempty"`
	Playground *PlaygroundResult `json:"playground,omitempty"`
}

// AllPassed reports whether every case ran and matched
func (r *Report) AllPassed() bool {
	return r.Error == nil && r.Total > 0 && r.Passed == r.Total
}

// Run evaluates against cases, or falls back to playground mode when there
// are none. Evaluation failures are reported inline; only request errors
// such as an unsupported language are returned.
func (e *Evaluator) Run(ctx context.Context, source, language string, cases []models.TestCase) (*Report, error) {
	if len(cases) == 0 {
		pg, err := e.Playground(ctx, source, language)
		if err != nil {
			return nil, err
		}
		return &Report{Mode: "playground", Playground: pg}, nil
	}

	report := &Report{Mode: "tests", Total: len(cases)}
	outcomes, err := e.Evaluate(ctx, source, language, cases)
	if err != nil {
		var evalErr *Error
		if errors.As(err, &evalErr) {
			report.Error = evalErr
			return report, nil
		}
		return nil, err
	}

	report.Outcomes = outcomes
	for _, o := range outcomes {
		if o.Passed {
			report.Passed++
		}
	}
	return report, nil
}
