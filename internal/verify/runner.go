package verify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/Iron-Ham/overseer/internal/logging"
)

// checkTimeout bounds a single check subprocess.
const checkTimeout = 300 * time.Second

// outputTail is how much check output is kept, counted from the end where
// the failure summary usually lives.
const outputTail = 2000

// defaultCommands maps check names to the tool invocation for each.
// Changed files are appended as extra arguments when the caller supplies
// them, narrowing the check to what actually moved.
var defaultCommands = map[string][]string{
	"tests":    {"pytest", "-v", "--tb=short"},
	"style":    {"ruff", "check"},
	"types":    {"mypy", "--ignore-missing-imports"},
	"security": {"bandit", "-r", "-ll"},
}

// ExecRunner runs checks as subprocesses in the project directory.
type ExecRunner struct {
	timeout  time.Duration
	commands map[string][]string
	log      *logging.Logger
}

// RunnerOption configures an ExecRunner.
type RunnerOption func(*ExecRunner)

// WithCheckTimeout overrides the per-check subprocess deadline.
func WithCheckTimeout(d time.Duration) RunnerOption {
	return func(r *ExecRunner) {
		r.timeout = d
	}
}

// WithCommand registers or replaces the invocation for a named check.
func WithCommand(check string, argv ...string) RunnerOption {
	return func(r *ExecRunner) {
		r.commands[check] = argv
	}
}

// NewExecRunner creates a subprocess check runner with the default tool set.
func NewExecRunner(log *logging.Logger, opts ...RunnerOption) *ExecRunner {
	if log == nil {
		log = logging.NopLogger()
	}
	r := &ExecRunner{
		timeout:  checkTimeout,
		commands: make(map[string][]string, len(defaultCommands)),
		log:      log.WithComponent("check_runner"),
	}
	for name, argv := range defaultCommands {
		r.commands[name] = argv
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one named check. An unregistered check name fails rather
// than erroring so the gate records it alongside real verdicts.
func (r *ExecRunner) Run(ctx context.Context, check, projectPath string, filesChanged []string) (bool, string, error) {
	argv, ok := r.commands[check]
	if !ok {
		return false, fmt.Sprintf("unknown check: %s", check), nil
	}

	args := append([]string(nil), argv[1:]...)
	args = append(args, filesChanged...)

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], args...)
	cmd.Dir = projectPath
	out, err := cmd.CombinedOutput()
	output := tail(string(out), outputTail)

	switch {
	case cctx.Err() == context.DeadlineExceeded:
		return false, fmt.Sprintf("check %s timed out after %s", check, r.timeout), nil
	case errors.Is(err, exec.ErrNotFound):
		return false, fmt.Sprintf("command not found: %s", argv[0]), nil
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Nonzero exit is the tool reporting findings, not a runner fault.
			return false, output, nil
		}
		return false, output, fmt.Errorf("failed to run check %s: %w", check, err)
	}

	r.log.Debug("check passed", "check", check)
	return true, output, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
