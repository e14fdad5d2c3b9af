// Package agent defines the collaborator interface to an autonomous coding
// agent process, plus the default implementation that drives the `claude`
// CLI in print mode over stdin/stdout.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Iron-Ham/overseer/internal/logging"
)

// ErrAgentUnavailable indicates the agent binary could not be started.
var ErrAgentUnavailable = errors.New("agent process unavailable")

// PermissionProfile names the operation scope granted to the agent for one
// request. The engine treats it as opaque; routing decisions based on it
// belong to the supervisor.
type PermissionProfile string

const (
	// ProfileAutoApprove covers read-only and verification operations.
	ProfileAutoApprove PermissionProfile = "auto_approve"

	// ProfileRestricted escalates anything beyond basic edits.
	ProfileRestricted PermissionProfile = "restricted"
)

// Response is one agent round trip. Structured is populated when the reply
// contains a decodable JSON payload; it stays nil on a schema mismatch, which
// is logged but never fatal.
type Response struct {
	Text       string
	Structured map[string]any
}

// Agent is an opaque request/response channel to a coding-agent process.
// Implementations must respect ctx cancellation and deadlines.
type Agent interface {
	Send(ctx context.Context, prompt string, profile PermissionProfile) (*Response, error)
}

// jsonBlock matches a fenced JSON payload inside an agent reply.
var jsonBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExecAgent runs the `claude` CLI in --print mode, one subprocess per Send.
type ExecAgent struct {
	binary      string
	projectPath string
	expectJSON  bool
	log         *logging.Logger
}

// ExecOption configures an ExecAgent.
type ExecOption func(*ExecAgent)

// WithBinary overrides the agent executable name.
func WithBinary(binary string) ExecOption {
	return func(a *ExecAgent) {
		a.binary = binary
	}
}

// WithStructuredOutput declares that replies should carry a JSON payload.
// A reply without one is logged as a validation mismatch and returned as
// plain text.
func WithStructuredOutput() ExecOption {
	return func(a *ExecAgent) {
		a.expectJSON = true
	}
}

// NewExecAgent creates an agent that runs in the given project directory.
func NewExecAgent(projectPath string, log *logging.Logger, opts ...ExecOption) *ExecAgent {
	a := &ExecAgent{
		binary:      "claude",
		projectPath: projectPath,
		log:         log.WithComponent("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send runs one print-mode round trip. The deadline comes from ctx; on
// expiry the subprocess is killed and the context error returned.
func (a *ExecAgent) Send(ctx context.Context, prompt string, profile PermissionProfile) (*Response, error) {
	args := []string{"--print", "--output-format", "text"}
	if profile == ProfileAutoApprove {
		args = append(args, "--dangerously-skip-permissions")
	}

	cmd := exec.CommandContext(ctx, a.binary, args...)
	cmd.Dir = a.projectPath
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
		}
		return nil, fmt.Errorf("agent process failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	return a.parse(stdout.String()), nil
}

// parse extracts the optional structured payload from a reply.
func (a *ExecAgent) parse(text string) *Response {
	resp := &Response{Text: text}

	match := jsonBlock.FindStringSubmatch(text)
	if match == nil {
		if a.expectJSON {
			a.log.Warn("structured output expected but reply has no JSON block")
		}
		return resp
	}

	var structured map[string]any
	if err := json.Unmarshal([]byte(match[1]), &structured); err != nil {
		a.log.Warn("structured output failed validation, returning raw text", "error", err)
		return resp
	}
	resp.Structured = structured
	return resp
}
