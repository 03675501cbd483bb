package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentd/internal/eventbus"
	"agentd/pkg/types"
)

// defaultSimulatedDelay is how long a simulated task runs when the config
// does not override it via "simulated_delay_ms".
const defaultSimulatedDelay = 2 * time.Second

// MemoryProvider is the reference backend: a deterministic in-memory
// simulator with no external dependencies. Initialize seeds three default
// agents forming a planning/execution/verification pipeline. Task execution
// sleeps for a fixed delay and then completes; the only non-completed
// terminal state reachable here is an explicit cancellation. Duplicate
// agent ids follow create-or-replace semantics.
type MemoryProvider struct {
	mu sync.Mutex

	agents map[string]*types.AgentStatus
	roster []string // agent ids in creation order, drives auto-routing
	tasks  map[string]*types.TaskStatus
	order  []string // task ids in creation order

	delay       time.Duration
	started     time.Time
	initialized bool

	opts   Options
	logger *slog.Logger
}

// NewMemoryProvider creates an in-memory provider. Recognized config keys:
// "simulated_delay_ms" (number).
func NewMemoryProvider(config map[string]interface{}, opts Options) *MemoryProvider {
	delay := defaultSimulatedDelay
	if ms := configInt(config, "simulated_delay_ms", 0); ms > 0 {
		delay = time.Duration(ms) * time.Millisecond
	}

	return &MemoryProvider{
		agents:  make(map[string]*types.AgentStatus),
		tasks:   make(map[string]*types.TaskStatus),
		delay:   delay,
		started: time.Now(),
		opts:    opts,
		logger:  opts.logger().With("provider", TypeMemory),
	}
}

// Type returns the provider type selector.
func (p *MemoryProvider) Type() string { return TypeMemory }

// Initialize seeds the default agent roster.
func (p *MemoryProvider) Initialize(ctx context.Context) error {
	defaults := []*types.AgentConfig{
		{
			AgentID:     "agent-planning",
			Name:        "Planning Agent",
			Description: "Handles task planning and decomposition",
			Provider:    TypeMemory,
			Tools:       []string{"task_breakdown", "dependency_analysis"},
			Config:      map[string]interface{}{"role": "planner"},
		},
		{
			AgentID:     "agent-execution",
			Name:        "Execution Agent",
			Description: "Executes approved tasks and reports progress",
			Provider:    TypeMemory,
			Tools:       []string{"code_execution", "file_operations"},
			Config:      map[string]interface{}{"role": "executor"},
		},
		{
			AgentID:     "agent-verification",
			Name:        "Verification Agent",
			Description: "Verifies task completion and quality",
			Provider:    TypeMemory,
			Tools:       []string{"test_runner", "quality_check"},
			Config:      map[string]interface{}{"role": "verifier"},
		},
	}

	for _, cfg := range defaults {
		if _, err := p.CreateAgent(ctx, cfg); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()

	p.logger.Info("memory provider initialized", "agents", len(defaults))
	p.opts.publish(eventbus.EventProviderInitialized, TypeMemory, nil)
	return nil
}

// Shutdown clears all state. Safe to call on an already-clean provider.
func (p *MemoryProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.agents = make(map[string]*types.AgentStatus)
	p.roster = nil
	p.tasks = make(map[string]*types.TaskStatus)
	p.order = nil
	p.initialized = false
	p.mu.Unlock()

	p.opts.publish(eventbus.EventProviderShutdown, TypeMemory, nil)
	return nil
}

// ListAgents returns the roster snapshot in creation order.
func (p *MemoryProvider) ListAgents(ctx context.Context) ([]*types.AgentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.AgentStatus, 0, len(p.roster))
	for _, id := range p.roster {
		out = append(out, p.agentSnapshot(p.agents[id]))
	}
	return out, nil
}

// GetAgentStatus returns the current status of one agent.
func (p *MemoryProvider) GetAgentStatus(ctx context.Context, agentID string) (*types.AgentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return p.agentSnapshot(agent), nil
}

// CreateAgent registers an agent. An existing agent with the same id is
// replaced, counters included.
func (p *MemoryProvider) CreateAgent(ctx context.Context, cfg *types.AgentConfig) (*types.AgentStatus, error) {
	now := time.Now().UTC()
	status := &types.AgentStatus{
		AgentID:      cfg.AgentID,
		Name:         cfg.Name,
		Status:       types.AgentStateIdle,
		LastActivity: &now,
		Metadata: map[string]interface{}{
			"description": cfg.Description,
			"tools":       cfg.Tools,
			"config":      cfg.Config,
		},
	}

	p.mu.Lock()
	if _, exists := p.agents[cfg.AgentID]; !exists {
		p.roster = append(p.roster, cfg.AgentID)
	}
	p.agents[cfg.AgentID] = status
	snapshot := p.agentSnapshot(status)
	p.mu.Unlock()

	p.opts.publish(eventbus.EventAgentCreated, TypeMemory, map[string]interface{}{"agent_id": cfg.AgentID})
	return snapshot, nil
}

// DeleteAgent removes an agent; false when the id is unknown.
func (p *MemoryProvider) DeleteAgent(ctx context.Context, agentID string) (bool, error) {
	p.mu.Lock()
	_, ok := p.agents[agentID]
	if ok {
		delete(p.agents, agentID)
		p.roster = removeID(p.roster, agentID)
	}
	p.mu.Unlock()

	if ok {
		p.opts.publish(eventbus.EventAgentDeleted, TypeMemory, map[string]interface{}{"agent_id": agentID})
	}
	return ok, nil
}

// SubmitTask registers the task as queued and launches its simulated
// execution in the background. When no agent id is given the task is
// auto-routed to the first idle agent in roster order; with no idle agent
// it stays unbound and still runs to completion.
func (p *MemoryProvider) SubmitTask(ctx context.Context, req *types.TaskRequest) (*types.TaskStatus, error) {
	taskID := req.TaskID
	if taskID == "" {
		taskID = fmt.Sprintf("task-%s", uuid.NewString()[:8])
	}

	p.mu.Lock()
	agentID := req.AgentID
	if agentID == "" {
		agentID = p.firstIdleLocked()
	} else if _, ok := p.agents[agentID]; !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	task := &types.TaskStatus{
		TaskID:    taskID,
		AgentID:   agentID,
		Status:    types.TaskStateQueued,
		Priority:  req.Priority,
		CreatedAt: time.Now().UTC(),
		Metadata:  copyMap(req.Metadata),
	}
	p.tasks[taskID] = task
	p.order = append(p.order, taskID)
	snapshot := cloneTask(task)
	p.mu.Unlock()

	p.opts.publish(eventbus.EventTaskSubmitted, TypeMemory, map[string]interface{}{
		"task_id":  taskID,
		"agent_id": agentID,
	})

	go p.execute(taskID, req.InputData)

	return snapshot, nil
}

// execute simulates one task: bind the agent, run for the configured delay,
// complete with a canned result echoing the input. A task cancelled before
// or during the delay keeps its cancelled status; the bound agent is
// released either way.
func (p *MemoryProvider) execute(taskID string, input map[string]interface{}) {
	p.mu.Lock()
	task, ok := p.tasks[taskID]
	if !ok || task.Status.Terminal() {
		p.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	task.Status = types.TaskStateRunning
	task.StartedAt = &now

	agentID := task.AgentID
	if agent, bound := p.agents[agentID]; bound {
		agent.Status = types.AgentStateBusy
		agent.CurrentTask = taskID
		agent.LastActivity = &now
	}
	p.mu.Unlock()

	p.opts.publish(eventbus.EventTaskStarted, TypeMemory, map[string]interface{}{
		"task_id":  taskID,
		"agent_id": agentID,
	})

	time.Sleep(p.delay)

	var elapsed float64
	p.mu.Lock()
	task, ok = p.tasks[taskID]
	if ok && !task.Status.Terminal() {
		done := time.Now().UTC()
		task.Status = types.TaskStateCompleted
		task.CompletedAt = &done
		if task.StartedAt != nil {
			elapsed = done.Sub(*task.StartedAt).Seconds()
		}
		task.Result = map[string]interface{}{
			"output": fmt.Sprintf("Task %s completed successfully", taskID),
			"data":   input,
		}
		if agent, bound := p.agents[agentID]; bound {
			agent.TasksCompleted++
		}
	}
	p.releaseAgentLocked(agentID, taskID)
	completed := ok && task.Status == types.TaskStateCompleted
	p.mu.Unlock()

	if completed {
		p.opts.publish(eventbus.EventTaskCompleted, TypeMemory, map[string]interface{}{
			"task_id":          taskID,
			"agent_id":         agentID,
			"duration_seconds": elapsed,
		})
	}
}

// GetTaskStatus returns the current status of one task.
func (p *MemoryProvider) GetTaskStatus(ctx context.Context, taskID string) (*types.TaskStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return cloneTask(task), nil
}

// CancelTask cancels a queued or running task. Unknown ids and tasks
// already in a terminal state return false.
func (p *MemoryProvider) CancelTask(ctx context.Context, taskID string) (bool, error) {
	p.mu.Lock()
	task, ok := p.tasks[taskID]
	if !ok || task.Status.Terminal() {
		p.mu.Unlock()
		return false, nil
	}

	now := time.Now().UTC()
	task.Status = types.TaskStateCancelled
	task.CompletedAt = &now
	agentID := task.AgentID
	p.releaseAgentLocked(agentID, taskID)
	p.mu.Unlock()

	p.opts.publish(eventbus.EventTaskCancelled, TypeMemory, map[string]interface{}{
		"task_id":  taskID,
		"agent_id": agentID,
	})
	return true, nil
}

// ListTasks filters tasks by agent and status, newest first.
func (p *MemoryProvider) ListTasks(ctx context.Context, filter TaskFilter) ([]*types.TaskStatus, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultTaskLimit
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.TaskStatus, 0, limit)
	for i := len(p.order) - 1; i >= 0 && len(out) < limit; i-- {
		task := p.tasks[p.order[i]]
		if filter.AgentID != "" && task.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		out = append(out, cloneTask(task))
	}
	return out, nil
}

// SystemMetrics aggregates the current agent and task collections.
func (p *MemoryProvider) SystemMetrics(ctx context.Context) (*types.SystemMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	metrics := aggregateMetrics(p.agents, p.tasks)
	metrics.Provider = TypeMemory
	metrics.UptimeSeconds = time.Since(p.started).Seconds()
	return metrics, nil
}

// HealthCheck reports healthy once initialized.
func (p *MemoryProvider) HealthCheck(ctx context.Context) *types.Health {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := types.HealthStatusHealthy
	errMsg := ""
	if !p.initialized {
		status = types.HealthStatusUnhealthy
		errMsg = ErrNotInitialized.Error()
	}

	return &types.Health{
		Status:        status,
		Provider:      TypeMemory,
		Agents:        len(p.agents),
		Tasks:         len(p.tasks),
		UptimeSeconds: time.Since(p.started).Seconds(),
		Error:         errMsg,
	}
}

// firstIdleLocked returns the first idle agent in roster order, or "".
func (p *MemoryProvider) firstIdleLocked() string {
	for _, id := range p.roster {
		if agent, ok := p.agents[id]; ok && agent.Status == types.AgentStateIdle {
			return id
		}
	}
	return ""
}

// releaseAgentLocked returns an agent to idle if it is still bound to the
// given task.
func (p *MemoryProvider) releaseAgentLocked(agentID, taskID string) {
	agent, ok := p.agents[agentID]
	if !ok || agent.CurrentTask != taskID {
		return
	}
	now := time.Now().UTC()
	agent.Status = types.AgentStateIdle
	agent.CurrentTask = ""
	agent.LastActivity = &now
}

// agentSnapshot copies an agent record, stamping its uptime.
func (p *MemoryProvider) agentSnapshot(agent *types.AgentStatus) *types.AgentStatus {
	c := cloneAgent(agent)
	c.UptimeSeconds = time.Since(p.started).Seconds()
	return c
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
