package verify

import (
	"context"
	"os/exec"
	"time"

	"github.com/wardenhq/warden/internal/types"
)

// maxCheckOutput caps the runner output kept on failed checks.
const maxCheckOutput = 2000

// CheckRunner executes one command-backed verification check.
// Implementations report pass/fail; a check that cannot run at all (timeout,
// missing binary) is a failure, not an error.
type CheckRunner interface {
	Run(ctx context.Context, kind types.CheckKind, check CheckConfig) (passed bool, output string)
}

// ExecRunner runs checks as subprocesses in a working directory.
type ExecRunner struct {
	workingDir string
}

// NewExecRunner creates a runner executing commands in dir.
func NewExecRunner(dir string) *ExecRunner {
	if dir == "" {
		dir = "."
	}
	return &ExecRunner{workingDir: dir}
}

// Run executes the check command. A non-zero exit, a timeout, or a failure
// to start all count as a failed check.
func (r *ExecRunner) Run(ctx context.Context, kind types.CheckKind, check CheckConfig) (bool, string) {
	if len(check.Command) == 0 {
		return false, "no command configured"
	}

	timeout := check.Timeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, check.Command[0], check.Command[1:]...)
	cmd.Dir = r.workingDir

	output, err := cmd.CombinedOutput()
	text := string(output)
	if len(text) > maxCheckOutput {
		text = text[:maxCheckOutput]
	}

	if ctx.Err() == context.DeadlineExceeded {
		return false, "check timed out after " + timeout.String()
	}
	if err != nil {
		return false, text
	}
	return true, text
}
