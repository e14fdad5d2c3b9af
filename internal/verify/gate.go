package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/overseer/internal/logging"
)

// Runner executes one named check against a project. Implementations decide
// how a check runs; the gate only consumes the verdict.
type Runner interface {
	Run(ctx context.Context, check, projectPath string, filesChanged []string) (passed bool, output string, err error)
}

// CheckResult is the verdict for a single check.
type CheckResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Result is the aggregate verdict over one gate run.
type Result struct {
	Passed     bool          `json:"passed"`
	Checks     []CheckResult `json:"checks"`
	Summary    string        `json:"summary"`
	VerifiedAt time.Time     `json:"verified_at"`
}

// Gate runs a list of named checks and ANDs their verdicts.
type Gate struct {
	runner      Runner
	projectPath string
	log         *logging.Logger
}

// NewGate creates a verification gate over the given runner.
func NewGate(runner Runner, projectPath string, log *logging.Logger) *Gate {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Gate{runner: runner, projectPath: projectPath, log: log.WithComponent("verify")}
}

// Run executes every requested check in order. A runner error counts as a
// failed check with the error text as output; it never aborts the run, so
// the caller always sees a verdict for each check it asked for.
func (g *Gate) Run(ctx context.Context, checks []string, filesChanged []string) Result {
	results := make([]CheckResult, 0, len(checks))
	allPassed := true
	failed := 0

	for _, name := range checks {
		start := time.Now()
		passed, output, err := g.runner.Run(ctx, name, g.projectPath, filesChanged)
		if err != nil {
			passed = false
			output = fmt.Sprintf("check runner error: %v", err)
		}
		if !passed {
			allPassed = false
			failed++
		}
		results = append(results, CheckResult{
			Name:     name,
			Passed:   passed,
			Output:   output,
			Duration: time.Since(start),
		})
		g.log.Debug("check finished", "check", name, "passed", passed)
	}

	res := Result{
		Passed:     allPassed,
		Checks:     results,
		Summary:    fmt.Sprintf("%d passed, %d failed out of %d checks", len(checks)-failed, failed, len(checks)),
		VerifiedAt: time.Now(),
	}
	g.log.Info("verification finished", "passed", res.Passed, "summary", res.Summary)
	return res
}
