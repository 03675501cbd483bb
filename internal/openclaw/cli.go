// Package openclaw wraps the OpenClaw gateway CLI. The gateway itself is
// WebSocket-based; the CLI with --json output is the supported integration
// surface. Commands used:
//
//	openclaw health --json                               gateway health
//	openclaw agents list --json                          configured agents
//	openclaw agents add <id> / agents delete <id>        agent CRUD
//	openclaw agent --agent <id> --message <text> --json  run a task
package openclaw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const cliName = "openclaw"

// defaultTimeout bounds control-plane commands (health, agent CRUD). Task
// runs carry their own, generally much longer, timeout.
const defaultTimeout = 30 * time.Second

var (
	// ErrCLINotFound reports that the openclaw binary is not on PATH.
	ErrCLINotFound = errors.New("openclaw CLI not found on PATH")

	// ErrCommandTimeout reports that a CLI invocation exceeded its deadline.
	ErrCommandTimeout = errors.New("openclaw command timed out")
)

// runFunc executes a command and returns stdout, stderr and the run error.
// It exists so tests can substitute the subprocess.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Client invokes the openclaw CLI and decodes its JSON output.
type Client struct {
	timeout  time.Duration
	logger   *slog.Logger
	run      runFunc
	lookPath func(string) (string, error)
}

// NewClient creates a CLI client. A zero timeout uses the default.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		timeout:  timeout,
		logger:   logger.With("component", "openclaw-cli"),
		run:      execRun,
		lookPath: exec.LookPath,
	}
}

// HealthReport is the decoded output of `openclaw health --json`.
type HealthReport struct {
	OK             bool   `json:"ok"`
	DefaultAgentID string `json:"defaultAgentId"`
	Version        string `json:"version"`
}

// Agent is one entry of `openclaw agents list --json`.
type Agent struct {
	ID        string `json:"id"`
	AgentID   string `json:"agentId"`
	Name      string `json:"name"`
	Workspace string `json:"workspace"`
	Model     string `json:"model"`
	IsDefault bool   `json:"isDefault"`
	Bindings  int    `json:"bindings"`
}

// Key returns the agent identifier, whichever field the gateway populated.
func (a Agent) Key() string {
	if a.ID != "" {
		return a.ID
	}
	return a.AgentID
}

// RunResult is the decoded output of a task run. Raw holds the stdout text
// when the CLI returned something that is not valid JSON.
type RunResult struct {
	Status string          `json:"status"`
	RunID  string          `json:"runId"`
	Result *RunResultInner `json:"result"`
	Raw    string          `json:"-"`
}

// RunResultInner is the nested payload structure of a successful run.
type RunResultInner struct {
	Payloads []RunPayload `json:"payloads"`
	Meta     RunMeta      `json:"meta"`
}

// RunPayload carries one piece of agent output.
type RunPayload struct {
	Text string `json:"text"`
}

// RunMeta carries execution metadata reported by the gateway.
type RunMeta struct {
	DurationMs int64    `json:"durationMs"`
	AgentMeta  RunAgent `json:"agentMeta"`
}

// RunAgent identifies the model that served the run.
type RunAgent struct {
	Model string `json:"model"`
}

// OK reports whether the run succeeded: an explicit ok status, or a
// non-empty result payload.
func (r *RunResult) OK() bool {
	return r.Status == "ok" || r.Result != nil
}

// Output extracts the first text payload of a successful run.
func (r *RunResult) Output() string {
	if r.Result == nil || len(r.Result.Payloads) == 0 {
		return ""
	}
	return r.Result.Payloads[0].Text
}

// Health probes the gateway.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	out, err := c.invoke(ctx, c.timeout, "health", "--json")
	if err != nil {
		return nil, err
	}

	var report HealthReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, fmt.Errorf("unparseable health output: %w", err)
	}
	return &report, nil
}

// Agents lists the agents configured on the gateway. The CLI has emitted
// both a bare array and an object with an "agents" field across versions;
// both are accepted.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	out, err := c.invoke(ctx, c.timeout, "agents", "list", "--json")
	if err != nil {
		return nil, err
	}

	var list []Agent
	if err := json.Unmarshal(out, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Agents []Agent `json:"agents"`
	}
	if err := json.Unmarshal(out, &wrapped); err != nil {
		return nil, fmt.Errorf("unparseable agents output: %w", err)
	}
	return wrapped.Agents, nil
}

// AddAgent registers an agent on the gateway.
func (c *Client) AddAgent(ctx context.Context, agentID string) error {
	_, err := c.invoke(ctx, c.timeout, "agents", "add", agentID)
	return err
}

// DeleteAgent removes an agent from the gateway.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	_, err := c.invoke(ctx, c.timeout, "agents", "delete", agentID)
	return err
}

// RunAgent executes a task on the gateway and blocks until the CLI exits
// or the timeout elapses. Non-JSON stdout is preserved in RunResult.Raw
// rather than treated as a transport failure.
func (c *Client) RunAgent(ctx context.Context, agentID, message string, timeout time.Duration) (*RunResult, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	out, err := c.invoke(ctx, timeout, "agent", "--agent", agentID, "--message", message, "--json")
	if err != nil {
		return nil, err
	}

	var result RunResult
	if jsonErr := json.Unmarshal(out, &result); jsonErr != nil {
		return &RunResult{Raw: strings.TrimSpace(string(out))}, nil
	}
	return &result, nil
}

// invoke runs one CLI command with a deadline. A non-zero exit with usable
// stdout is logged and tolerated; the gateway reports some degraded states
// that way while still emitting JSON.
func (c *Client) invoke(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	if _, err := c.lookPath(cliName); err != nil {
		return nil, ErrCLINotFound
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.Debug("running openclaw command", "args", strings.Join(args, " "))

	stdout, stderr, err := c.run(runCtx, cliName, args...)
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s: %s", ErrCommandTimeout, timeout, strings.Join(args, " "))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(bytes.TrimSpace(stdout)) > 0 {
			c.logger.Warn("openclaw exited non-zero",
				"error", err,
				"stderr", strings.TrimSpace(string(stderr)))
			return stdout, nil
		}
		return nil, fmt.Errorf("openclaw %s: %w", args[0], err)
	}

	return stdout, nil
}
