package evaluator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/terra-clan/assessment-engine/internal/execution"
	"github.com/terra-clan/assessment-engine/internal/failure"
	"github.com/terra-clan/assessment-engine/internal/models"
)

// scriptedExecutor answers by stdin and records every call in order
type scriptedExecutor struct {
	mu      sync.Mutex
	replies map[string]*execution.Result
	errs    map[string]error
	calls   []string
}

func (s *scriptedExecutor) Execute(ctx context.Context, req execution.Request) (*execution.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req.Stdin)
	if err, ok := s.errs[req.Stdin]; ok {
		return nil, err
	}
	if res, ok := s.replies[req.Stdin]; ok {
		return res, nil
	}
	return &execution.Result{}, nil
}

func cases(inputs ...string) []models.TestCase {
	out := make([]models.TestCase, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, models.TestCase{Input: in, Expected: "ok"})
	}
	return out
}

func TestEvaluateContinuesOnMismatch(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]*execution.Result{
		"a": {Stdout: "ok\n"},
		"b": {Stdout: "nope"},
		"c": {Stdout: "  ok"},
	}}
	ev := New(exec, execution.NewLanguages())

	outcomes, err := ev.Evaluate(context.Background(), "src", "python", cases("a", "b", "c"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	want := []bool{true, false, true}
	for i, o := range outcomes {
		if o.Index != i || o.Passed != want[i] {
			t.Errorf("outcome %d = %+v", i, o)
		}
	}
	if len(exec.calls) != 3 {
		t.Errorf("expected 3 calls, got %v", exec.calls)
	}
}

func TestEvaluateHaltsOnRuntimeError(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]*execution.Result{
		"0": {Stdout: "ok"},
		"1": {Stdout: "bad"},
		"2": {Stderr: "ZeroDivisionError: division by zero", ExitCode: 1},
		"3": {Stdout: "ok"},
	}}
	ev := New(exec, execution.NewLanguages())

	outcomes, err := ev.Evaluate(context.Background(), "src", "python", cases("0", "1", "2", "3"))
	if outcomes != nil {
		t.Errorf("expected no outcomes, got %+v", outcomes)
	}

	var evalErr *Error
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if evalErr.Kind != failure.KindRuntime || evalErr.CaseIndex != 2 {
		t.Errorf("error = %+v", evalErr)
	}
	if evalErr.Message != "ZeroDivisionError: division by zero" {
		t.Errorf("message = %q", evalErr.Message)
	}
	if len(exec.calls) != 3 {
		t.Errorf("case after the failure was executed: %v", exec.calls)
	}
}

func TestEvaluateHaltKinds(t *testing.T) {
	tests := []struct {
		name  string
		reply *execution.Result
		err   error
		want  failure.Kind
	}{
		{"compile", &execution.Result{Compile: &execution.CompileOutput{ExitCode: 1, Stderr: "oops"}}, nil, failure.KindCompile},
		{"time limit", &execution.Result{Signal: "SIGKILL"}, nil, failure.KindTimeLimit},
		{"connectivity", nil, failure.New(failure.KindConnectivity, "down"), failure.KindConnectivity},
		{"unclassified", nil, errors.New("weird"), failure.KindConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{
				replies: map[string]*execution.Result{},
				errs:    map[string]error{},
			}
			if tt.err != nil {
				exec.errs["x"] = tt.err
			} else {
				exec.replies["x"] = tt.reply
			}
			ev := New(exec, execution.NewLanguages())

			_, err := ev.Evaluate(context.Background(), "src", "cpp", cases("x", "y"))
			var evalErr *Error
			if !errors.As(err, &evalErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if evalErr.Kind != tt.want || evalErr.CaseIndex != 0 {
				t.Errorf("error = %+v", evalErr)
			}
			if len(exec.calls) != 1 {
				t.Errorf("expected a single call, got %v", exec.calls)
			}
		})
	}
}

func TestEvaluateUnsupportedLanguage(t *testing.T) {
	exec := &scriptedExecutor{}
	ev := New(exec, execution.NewLanguages())

	_, err := ev.Evaluate(context.Background(), "src", "cobol", cases("a"))
	if !errors.Is(err, execution.ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if len(exec.calls) != 0 {
		t.Error("no execution expected")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		expected, actual string
		want             bool
	}{
		{" 42 \n", "42", true},
		{"42", "42.0", false},
		{"Hello", "hello", false},
		{"1 2", "1  2", false},
		{"a\nb\n", "a\nb", true},
		{"", "\n", true},
	}

	for _, tt := range tests {
		if got := Matches(tt.expected, tt.actual); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.expected, tt.actual, got, tt.want)
		}
	}
}

func TestPlaygroundPreview(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]*execution.Result{
		"": {Stdout: "<h1>hi</h1>"},
	}}
	ev := New(exec, execution.NewLanguages())

	report, err := ev.Run(context.Background(), "print('<h1>hi</h1>')", "python", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Mode != "playground" || report.Playground == nil {
		t.Fatalf("report = %+v", report)
	}
	if report.Playground.Preview != "<h1>hi</h1>" {
		t.Errorf("preview = %q", report.Playground.Preview)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "" {
		t.Errorf("expected one run with empty input, got %v", exec.calls)
	}
}

func TestPlaygroundPlainOutput(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]*execution.Result{
		"": {Stdout: "1 < 2"},
	}}
	ev := New(exec, execution.NewLanguages())

	pg, err := ev.Playground(context.Background(), "src", "python")
	if err != nil {
		t.Fatalf("Playground: %v", err)
	}
	if pg.Preview != "" || pg.Stdout != "1 < 2" || pg.Diagnostic != nil {
		t.Errorf("result = %+v", pg)
	}
}

func TestPlaygroundDiagnostic(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]*execution.Result{
		"": {Compile: &execution.CompileOutput{ExitCode: 1, Stderr: "expected ';'"}},
	}}
	ev := New(exec, execution.NewLanguages())

	pg, err := ev.Playground(context.Background(), "src", "java")
	if err != nil {
		t.Fatalf("Playground: %v", err)
	}
	if pg.Diagnostic == nil || pg.Diagnostic.Kind != failure.KindCompile {
		t.Fatalf("diagnostic = %+v", pg.Diagnostic)
	}
	if pg.Stderr != "expected ';'" {
		t.Errorf("stderr = %q", pg.Stderr)
	}
}

func TestLooksLikeMarkup(t *testing.T) {
	tests := map[string]bool{
		"<h1>hi</h1>":         true,
		"  \n<!DOCTYPE html>": true,
		"<div class='x'>":     true,
		"< 3":                 false,
		"<":                   false,
		"hello <b>":           false,
		"":                    false,
	}
	for in, want := range tests {
		if got := LooksLikeMarkup(in); got != want {
			t.Errorf("LooksLikeMarkup(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRunReportCounts(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]*execution.Result{
		"a": {Stdout: "ok"},
		"b": {Stdout: "ok"},
	}}
	ev := New(exec, execution.NewLanguages())

	report, err := ev.Run(context.Background(), "src", "go", cases("a", "b"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.AllPassed() || report.Passed != 2 || report.Total != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunReportsInlineError(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]*execution.Result{
		"a": {Signal: "SIGKILL"},
	}}
	ev := New(exec, execution.NewLanguages())

	report, err := ev.Run(context.Background(), "src", "go", cases("a", "b"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Error == nil || report.Error.Kind != failure.KindTimeLimit || report.AllPassed() {
		t.Errorf("report = %+v", report)
	}
}
