package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentd/pkg/types"
)

func newTestMemoryProvider(t *testing.T, delayMs int) *MemoryProvider {
	t.Helper()
	p := NewMemoryProvider(map[string]interface{}{"simulated_delay_ms": delayMs}, Options{})
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func waitForTaskState(t *testing.T, p Provider, taskID string, want types.TaskState) *types.TaskStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := p.GetTaskStatus(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", taskID, want)
	return nil
}

func TestMemoryInitializeSeedsDefaultAgents(t *testing.T) {
	p := newTestMemoryProvider(t, 20)

	agents, err := p.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 3)

	assert.Equal(t, "agent-planning", agents[0].AgentID)
	assert.Equal(t, "agent-execution", agents[1].AgentID)
	assert.Equal(t, "agent-verification", agents[2].AgentID)
	for _, a := range agents {
		assert.Equal(t, types.AgentStateIdle, a.Status)
		assert.NotNil(t, a.LastActivity)
	}
}

func TestMemorySubmitTaskAutoRoutes(t *testing.T) {
	p := newTestMemoryProvider(t, 50)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{Description: "plan the thing"})
	require.NoError(t, err)
	assert.Equal(t, "agent-planning", task.AgentID)
	assert.Equal(t, types.TaskStateQueued, task.Status)
	assert.Regexp(t, `^task-[0-9a-f]{8}$`, task.TaskID)

	done := waitForTaskState(t, p, task.TaskID, types.TaskStateCompleted)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.StartedAt)
	assert.Contains(t, done.Result["output"], task.TaskID)
}

func TestMemorySubmitTaskUnknownAgent(t *testing.T) {
	p := newTestMemoryProvider(t, 20)

	_, err := p.SubmitTask(context.Background(), &types.TaskRequest{
		AgentID:     "agent-nonexistent",
		Description: "doomed",
	})
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestMemoryAgentBusyDuringExecution(t *testing.T) {
	p := newTestMemoryProvider(t, 300)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{
		AgentID:     "agent-execution",
		Description: "long running",
	})
	require.NoError(t, err)

	waitForTaskState(t, p, task.TaskID, types.TaskStateRunning)
	agent, err := p.GetAgentStatus(context.Background(), "agent-execution")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStateBusy, agent.Status)
	assert.Equal(t, task.TaskID, agent.CurrentTask)

	waitForTaskState(t, p, task.TaskID, types.TaskStateCompleted)
	agent, err = p.GetAgentStatus(context.Background(), "agent-execution")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStateIdle, agent.Status)
	assert.Empty(t, agent.CurrentTask)
	assert.Equal(t, 1, agent.TasksCompleted)
}

func TestMemoryCancelBeforeCompletion(t *testing.T) {
	p := newTestMemoryProvider(t, 500)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{Description: "to be cancelled"})
	require.NoError(t, err)

	cancelled, err := p.CancelTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	got, err := p.GetTaskStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)

	// The execution goroutine must not overwrite the cancelled state.
	time.Sleep(700 * time.Millisecond)
	got, err = p.GetTaskStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCancelled, got.Status)
	assert.Nil(t, got.Result)

	// The agent it was bound to is released.
	agent, err := p.GetAgentStatus(context.Background(), task.AgentID)
	require.NoError(t, err)
	assert.Equal(t, types.AgentStateIdle, agent.Status)
}

func TestMemoryCancelTerminalTask(t *testing.T) {
	p := newTestMemoryProvider(t, 20)

	task, err := p.SubmitTask(context.Background(), &types.TaskRequest{Description: "quick"})
	require.NoError(t, err)
	done := waitForTaskState(t, p, task.TaskID, types.TaskStateCompleted)
	completedAt := *done.CompletedAt

	cancelled, err := p.CancelTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	got, err := p.GetTaskStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCompleted, got.Status)
	assert.Equal(t, completedAt, *got.CompletedAt)
}

func TestMemoryCancelUnknownTask(t *testing.T) {
	p := newTestMemoryProvider(t, 20)

	cancelled, err := p.CancelTask(context.Background(), "task-missing")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestMemoryTaskAndAgentNotFound(t *testing.T) {
	p := newTestMemoryProvider(t, 20)

	_, err := p.GetTaskStatus(context.Background(), "task-missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = p.GetAgentStatus(context.Background(), "agent-missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestMemoryCreateAndDeleteAgent(t *testing.T) {
	p := newTestMemoryProvider(t, 20)

	created, err := p.CreateAgent(context.Background(), &types.AgentConfig{
		AgentID: "agent-custom",
		Name:    "Custom Agent",
		Tools:   []string{"grep"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.AgentStateIdle, created.Status)

	agents, err := p.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 4)

	removed, err := p.DeleteAgent(context.Background(), "agent-custom")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = p.DeleteAgent(context.Background(), "agent-custom")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryCreateAgentReplacesExisting(t *testing.T) {
	p := newTestMemoryProvider(t, 20)

	replaced, err := p.CreateAgent(context.Background(), &types.AgentConfig{
		AgentID: "agent-planning",
		Name:    "Planner v2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Planner v2", replaced.Name)

	agents, err := p.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 3)
}

func TestMemoryListTasksFiltering(t *testing.T) {
	p := newTestMemoryProvider(t, 30)
	ctx := context.Background()

	first, err := p.SubmitTask(ctx, &types.TaskRequest{AgentID: "agent-planning", Description: "one"})
	require.NoError(t, err)
	second, err := p.SubmitTask(ctx, &types.TaskRequest{AgentID: "agent-execution", Description: "two"})
	require.NoError(t, err)

	waitForTaskState(t, p, first.TaskID, types.TaskStateCompleted)
	waitForTaskState(t, p, second.TaskID, types.TaskStateCompleted)

	all, err := p.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, second.TaskID, all[0].TaskID)

	byAgent, err := p.ListTasks(ctx, TaskFilter{AgentID: "agent-planning"})
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, first.TaskID, byAgent[0].TaskID)

	byStatus, err := p.ListTasks(ctx, TaskFilter{Status: types.TaskStateFailed})
	require.NoError(t, err)
	assert.Empty(t, byStatus)

	limited, err := p.ListTasks(ctx, TaskFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemorySystemMetrics(t *testing.T) {
	p := newTestMemoryProvider(t, 20)
	ctx := context.Background()

	m, err := p.SystemMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeMemory, m.Provider)
	assert.Equal(t, 3, m.TotalAgents)
	assert.Equal(t, 3, m.IdleAgents)
	assert.Equal(t, 3, m.ActiveAgents)
	assert.Equal(t, 0, m.TotalTasksQueued)
	assert.Zero(t, m.AverageTaskTimeSeconds)

	task, err := p.SubmitTask(ctx, &types.TaskRequest{Description: "metered"})
	require.NoError(t, err)
	waitForTaskState(t, p, task.TaskID, types.TaskStateCompleted)

	m, err = p.SystemMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalTasksCompleted)
	assert.Greater(t, m.AverageTaskTimeSeconds, 0.0)
}

func TestMemoryHealthCheck(t *testing.T) {
	p := NewMemoryProvider(nil, Options{})

	h := p.HealthCheck(context.Background())
	assert.Equal(t, types.HealthStatusUnhealthy, h.Status)
	assert.NotEmpty(t, h.Error)

	require.NoError(t, p.Initialize(context.Background()))
	h = p.HealthCheck(context.Background())
	assert.Equal(t, types.HealthStatusHealthy, h.Status)
	assert.Equal(t, 3, h.Agents)

	require.NoError(t, p.Shutdown(context.Background()))
	h = p.HealthCheck(context.Background())
	assert.Equal(t, types.HealthStatusUnhealthy, h.Status)
}

func TestMemoryShutdownClearsState(t *testing.T) {
	p := newTestMemoryProvider(t, 20)
	ctx := context.Background()

	_, err := p.SubmitTask(ctx, &types.TaskRequest{Description: "ephemeral"})
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(ctx))

	agents, err := p.ListAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)

	tasks, err := p.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
