package execution

import (
	"fmt"
	"strings"

	"github.com/terra-clan/assessment-engine/internal/failure"
)

// Classify maps a raw result to a failure, or nil for a clean run.
// The order matters: a compile failure hides the run block, and a
// termination signal means the run was cut short before any stderr is final.
func Classify(res *Result) error {
	if res == nil {
		return failure.New(failure.KindConnectivity, "no response from code execution service")
	}

	if res.Compile != nil && res.Compile.ExitCode != 0 {
		msg := strings.TrimSpace(res.Compile.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Compile.Stdout)
		}
		if msg == "" {
			msg = fmt.Sprintf("compiler exited with code %d", res.Compile.ExitCode)
		}
		return failure.New(failure.KindCompile, msg)
	}

	if res.Signal != "" {
		return failure.Newf(failure.KindTimeLimit, "program terminated by %s: time or memory limit exceeded", res.Signal)
	}

	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		return failure.New(failure.KindRuntime, stderr)
	}

	if res.ExitCode != 0 {
		return failure.Newf(failure.KindRuntime, "program exited with code %d", res.ExitCode)
	}

	return nil
}
