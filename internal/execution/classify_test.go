package execution

import (
	"testing"

	"github.com/terra-clan/assessment-engine/internal/failure"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
		want failure.Kind
	}{
		{"nil result", nil, failure.KindConnectivity},
		{"compile error", &Result{Compile: &CompileOutput{ExitCode: 1, Stderr: "syntax"}}, failure.KindCompile},
		{"compile error hides signal", &Result{Signal: "SIGKILL", Compile: &CompileOutput{ExitCode: 2}}, failure.KindCompile},
		{"signal", &Result{Signal: "SIGKILL", Stderr: "killed"}, failure.KindTimeLimit},
		{"stderr with clean exit", &Result{Stderr: "Traceback"}, failure.KindRuntime},
		{"non-zero exit", &Result{ExitCode: 3}, failure.KindRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.res)
			if !failure.Is(err, tt.want) {
				t.Errorf("Classify() = %v, want kind %s", err, tt.want)
			}
		})
	}
}

func TestClassifyCleanRun(t *testing.T) {
	res := &Result{Stdout: "ok", Compile: &CompileOutput{ExitCode: 0}}
	if err := Classify(res); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestClassifyCompileMessage(t *testing.T) {
	err := Classify(&Result{Compile: &CompileOutput{ExitCode: 1, Stderr: "  main.c:1: error  \n"}})
	if got := failure.ReasonOf(err); got != "main.c:1: error" {
		t.Errorf("reason = %q", got)
	}
}
