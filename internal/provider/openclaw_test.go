package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentd/internal/openclaw"
	"agentd/pkg/types"
)

// stubGateway fakes the CLI client so provider behavior can be exercised
// without an openclaw binary on PATH.
type stubGateway struct {
	mu sync.Mutex

	healthReport *openclaw.HealthReport
	healthErr    error
	agents       []openclaw.Agent
	agentsErr    error
	addErr       error
	deleteErr    error
	runResult    *openclaw.RunResult
	runErr       error
	runDelay     time.Duration

	addCalls    []string
	deleteCalls []string
	runCalls    []string
}

func (s *stubGateway) Health(ctx context.Context) (*openclaw.HealthReport, error) {
	return s.healthReport, s.healthErr
}

func (s *stubGateway) Agents(ctx context.Context) ([]openclaw.Agent, error) {
	return s.agents, s.agentsErr
}

func (s *stubGateway) AddAgent(ctx context.Context, agentID string) error {
	s.mu.Lock()
	s.addCalls = append(s.addCalls, agentID)
	s.mu.Unlock()
	return s.addErr
}

func (s *stubGateway) DeleteAgent(ctx context.Context, agentID string) error {
	s.mu.Lock()
	s.deleteCalls = append(s.deleteCalls, agentID)
	s.mu.Unlock()
	return s.deleteErr
}

func (s *stubGateway) RunAgent(ctx context.Context, agentID, message string, timeout time.Duration) (*openclaw.RunResult, error) {
	s.mu.Lock()
	s.runCalls = append(s.runCalls, agentID)
	s.mu.Unlock()
	if s.runDelay > 0 {
		time.Sleep(s.runDelay)
	}
	return s.runResult, s.runErr
}

func healthyStub() *stubGateway {
	return &stubGateway{
		healthReport: &openclaw.HealthReport{OK: true, DefaultAgentID: "main"},
		agents: []openclaw.Agent{
			{ID: "main", Name: "Main Agent", Model: "sonnet", IsDefault: true},
			{ID: "research", Name: "Research Agent", Model: "opus"},
		},
		runResult: &openclaw.RunResult{
			Status: "ok",
			RunID:  "run-1",
			Result: &openclaw.RunResultInner{
				Payloads: []openclaw.RunPayload{{Text: "done"}},
			},
		},
	}
}

func newTestOpenClawProvider(t *testing.T, stub *stubGateway) *OpenClawProvider {
	t.Helper()
	p := NewOpenClawProvider(nil, Options{})
	p.cli = stub
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestOpenClawInitializeUnreachableGateway(t *testing.T) {
	p := NewOpenClawProvider(nil, Options{})
	p.cli = &stubGateway{healthErr: errors.New("connection refused")}

	err := p.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrGatewayUnreachable)
}

func TestOpenClawInitializeGatewayNotOK(t *testing.T) {
	p := NewOpenClawProvider(nil, Options{})
	p.cli = &stubGateway{healthReport: &openclaw.HealthReport{OK: false}}

	err := p.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrGatewayUnreachable)
}

func TestOpenClawInitializeLoadsRoster(t *testing.T) {
	p := newTestOpenClawProvider(t, healthyStub())

	agents, err := p.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "main", agents[0].AgentID)
	assert.Equal(t, types.AgentStateIdle, agents[0].Status)
	assert.Equal(t, "sonnet", agents[0].Metadata["model"])
}

func TestOpenClawResyncPrunesAndPreservesCounters(t *testing.T) {
	stub := healthyStub()
	p := newTestOpenClawProvider(t, stub)

	// Complete one task on "research" to bump its counter.
	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{
		AgentID:     "research",
		Description: "dig",
	})
	require.NoError(t, err)
	waitForTaskState(t, p, task.TaskID, types.TaskStateCompleted)

	// The gateway now reports a changed roster: research survives with new
	// metadata, main is gone, scout is new.
	stub.agents = []openclaw.Agent{
		{ID: "research", Name: "Research Agent", Model: "haiku"},
		{ID: "scout", Name: "Scout Agent"},
	}

	agents, err := p.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)

	byID := map[string]*types.AgentStatus{}
	for _, a := range agents {
		byID[a.AgentID] = a
	}
	require.Contains(t, byID, "research")
	require.Contains(t, byID, "scout")
	assert.Equal(t, 1, byID["research"].TasksCompleted)
	assert.Equal(t, "haiku", byID["research"].Metadata["model"])

	_, err = p.GetAgentStatus(context.Background(), "main")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestOpenClawResyncFailureServesLocalRoster(t *testing.T) {
	stub := healthyStub()
	p := newTestOpenClawProvider(t, stub)

	stub.agentsErr = errors.New("gateway flaked")

	agents, err := p.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

func TestOpenClawCreateAgentOptimistic(t *testing.T) {
	stub := healthyStub()
	stub.addErr = errors.New("gateway rejected registration")
	p := newTestOpenClawProvider(t, stub)

	agent, err := p.CreateAgent(context.Background(), &types.AgentConfig{
		AgentID: "writer",
		Name:    "Writer Agent",
	})
	require.NoError(t, err)
	assert.Equal(t, types.AgentStateIdle, agent.Status)
	assert.Contains(t, stub.addCalls, "writer")

	// Locally registered despite the remote failure. Resync is suppressed
	// here so the gateway's roster does not prune it back out.
	stub.agentsErr = errors.New("down")
	got, err := p.GetAgentStatus(context.Background(), "writer")
	require.NoError(t, err)
	assert.Equal(t, "writer", got.AgentID)
}

func TestOpenClawDeleteAgentRemoteFailureStillCleansUp(t *testing.T) {
	stub := healthyStub()
	stub.deleteErr = errors.New("remote delete failed")
	p := newTestOpenClawProvider(t, stub)

	removed, err := p.DeleteAgent(context.Background(), "research")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Contains(t, stub.deleteCalls, "research")

	removed, err = p.DeleteAgent(context.Background(), "research")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestOpenClawSubmitTaskSuccess(t *testing.T) {
	p := newTestOpenClawProvider(t, healthyStub())

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{Description: "summarize"})
	require.NoError(t, err)
	// Auto-routes to the first idle agent in roster order.
	assert.Equal(t, "main", task.AgentID)

	done := waitForTaskState(t, p, task.TaskID, types.TaskStateCompleted)
	assert.Equal(t, "done", done.Result["output"])
	assert.Equal(t, "run-1", done.Result["run_id"])

	agent, err := p.GetAgentStatus(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 1, agent.TasksCompleted)
	assert.Equal(t, types.AgentStateIdle, agent.Status)
}

func TestOpenClawSubmitTaskRunFailure(t *testing.T) {
	stub := healthyStub()
	stub.runErr = errors.New("exec: openclaw crashed")
	p := newTestOpenClawProvider(t, stub)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{
		AgentID:     "main",
		Description: "doomed",
	})
	require.NoError(t, err)

	failed := waitForTaskState(t, p, task.TaskID, types.TaskStateFailed)
	assert.Contains(t, failed.Error, "openclaw crashed")
	assert.Nil(t, failed.Result)

	agent, err := p.GetAgentStatus(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 1, agent.TasksFailed)
	assert.Equal(t, types.AgentStateIdle, agent.Status)
}

func TestOpenClawFailedTaskExcludedFromAverageTime(t *testing.T) {
	stub := healthyStub()
	stub.runErr = errors.New("exec: openclaw crashed")
	stub.runDelay = 50 * time.Millisecond
	p := newTestOpenClawProvider(t, stub)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{Description: "doomed"})
	require.NoError(t, err)

	failed := waitForTaskState(t, p, task.TaskID, types.TaskStateFailed)
	require.NotNil(t, failed.StartedAt)
	require.NotNil(t, failed.CompletedAt)

	m, err := p.SystemMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalTasksFailed)
	assert.Equal(t, 0.0, m.AverageTaskTimeSeconds)
}

func TestOpenClawSubmitTaskNonOKResult(t *testing.T) {
	stub := healthyStub()
	stub.runResult = &openclaw.RunResult{Status: "error", Raw: "agent misconfigured"}
	p := newTestOpenClawProvider(t, stub)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{Description: "bad run"})
	require.NoError(t, err)

	failed := waitForTaskState(t, p, task.TaskID, types.TaskStateFailed)
	assert.Contains(t, failed.Error, "agent misconfigured")
}

func TestOpenClawCancelDuringRun(t *testing.T) {
	stub := healthyStub()
	stub.runDelay = 300 * time.Millisecond
	p := newTestOpenClawProvider(t, stub)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{Description: "slow"})
	require.NoError(t, err)
	waitForTaskState(t, p, task.TaskID, types.TaskStateRunning)

	cancelled, err := p.CancelTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// The CLI call finishes after cancellation; the cancelled state wins.
	time.Sleep(500 * time.Millisecond)
	got, err := p.GetTaskStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCancelled, got.Status)
	assert.Nil(t, got.Result)
	require.NotNil(t, got.CompletedAt)
}

func TestOpenClawRoutingFallsBackToDefaultAgent(t *testing.T) {
	stub := healthyStub()
	stub.runDelay = 400 * time.Millisecond
	p := newTestOpenClawProvider(t, stub)
	ctx := context.Background()

	// Occupy both roster agents.
	t1, err := p.SubmitTask(ctx, &types.TaskRequest{Description: "one"})
	require.NoError(t, err)
	waitForTaskState(t, p, t1.TaskID, types.TaskStateRunning)
	t2, err := p.SubmitTask(ctx, &types.TaskRequest{Description: "two"})
	require.NoError(t, err)
	waitForTaskState(t, p, t2.TaskID, types.TaskStateRunning)

	// No idle agents left: routing falls back to the gateway default.
	t3, err := p.SubmitTask(ctx, &types.TaskRequest{Description: "three"})
	require.NoError(t, err)
	assert.Equal(t, "main", t3.AgentID)
}

func TestOpenClawHealthCheckDegradedAndUnhealthy(t *testing.T) {
	stub := healthyStub()
	p := newTestOpenClawProvider(t, stub)

	h := p.HealthCheck(context.Background())
	assert.Equal(t, types.HealthStatusHealthy, h.Status)
	assert.Equal(t, true, h.Detail["gateway_healthy"])

	stub.healthReport = &openclaw.HealthReport{OK: false}
	h = p.HealthCheck(context.Background())
	assert.Equal(t, types.HealthStatusDegraded, h.Status)

	stub.healthReport = nil
	stub.healthErr = errors.New("gateway gone")
	h = p.HealthCheck(context.Background())
	assert.Equal(t, types.HealthStatusUnhealthy, h.Status)
	assert.Contains(t, h.Error, "gateway gone")
}
