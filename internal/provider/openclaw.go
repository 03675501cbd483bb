package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentd/internal/eventbus"
	"agentd/internal/openclaw"
	"agentd/pkg/types"
)

// defaultTaskTimeout bounds a gateway task run when the request does not
// carry its own timeout.
const defaultTaskTimeout = 300 * time.Second

// fallbackAgentID is used when auto-routing finds no idle agent and the
// gateway health probe did not report a default agent.
const fallbackAgentID = "main"

// gatewayClient is the slice of the CLI client the provider depends on.
type gatewayClient interface {
	Health(ctx context.Context) (*openclaw.HealthReport, error)
	Agents(ctx context.Context) ([]openclaw.Agent, error)
	AddAgent(ctx context.Context, agentID string) error
	DeleteAgent(ctx context.Context, agentID string) error
	RunAgent(ctx context.Context, agentID, message string, timeout time.Duration) (*openclaw.RunResult, error)
}

// OpenClawProvider drives the OpenClaw gateway through its CLI. The gateway
// is the source of truth for the agent roster: read paths resync against it
// before answering, merging externally reported agents into the local map
// while preserving local task counters, and pruning entries the gateway no
// longer reports. Task state lives locally only.
//
// Agent creation is optimistic: when the remote registration fails the
// agent is still recorded locally and the failure is logged, not surfaced.
type OpenClawProvider struct {
	mu sync.Mutex

	agents map[string]*types.AgentStatus
	roster []string
	tasks  map[string]*types.TaskStatus
	order  []string

	cli          gatewayClient
	gatewayURL   string
	workspace    string
	defaultModel string
	defaultAgent string

	taskTimeout time.Duration
	started     time.Time
	initialized bool

	opts   Options
	logger *slog.Logger
}

// NewOpenClawProvider creates a gateway-backed provider. Recognized config
// keys: "gateway_url", "workspace_path", "default_model",
// "command_timeout_seconds", "task_timeout_seconds".
func NewOpenClawProvider(config map[string]interface{}, opts Options) *OpenClawProvider {
	logger := opts.logger().With("provider", TypeOpenClaw)

	commandTimeout := time.Duration(configInt(config, "command_timeout_seconds", 30)) * time.Second
	taskTimeout := defaultTaskTimeout
	if secs := configInt(config, "task_timeout_seconds", 0); secs > 0 {
		taskTimeout = time.Duration(secs) * time.Second
	}

	return &OpenClawProvider{
		agents:       make(map[string]*types.AgentStatus),
		tasks:        make(map[string]*types.TaskStatus),
		cli:          openclaw.NewClient(commandTimeout, logger),
		gatewayURL:   configString(config, "gateway_url", "http://localhost:18789"),
		workspace:    configString(config, "workspace_path", ""),
		defaultModel: configString(config, "default_model", ""),
		taskTimeout:  taskTimeout,
		started:      time.Now(),
		opts:         opts,
		logger:       logger,
	}
}

// Type returns the provider type selector.
func (p *OpenClawProvider) Type() string { return TypeOpenClaw }

// Initialize verifies the gateway is reachable and loads the agent roster.
// The provider is unusable without the gateway, so a failed health probe
// is a hard error here, unlike on read paths.
func (p *OpenClawProvider) Initialize(ctx context.Context) error {
	health, err := p.cli.Health(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	if !health.OK {
		return fmt.Errorf("%w: gateway reported not ok", ErrGatewayUnreachable)
	}

	p.mu.Lock()
	p.defaultAgent = health.DefaultAgentID
	p.initialized = true
	p.mu.Unlock()

	if err := p.syncAgents(ctx); err != nil {
		p.logger.Warn("initial agent sync failed", "error", err)
	}

	p.mu.Lock()
	count := len(p.agents)
	p.mu.Unlock()

	p.logger.Info("openclaw provider initialized", "agents", count, "gateway", p.gatewayURL)
	p.opts.publish(eventbus.EventProviderInitialized, TypeOpenClaw, map[string]interface{}{"gateway_url": p.gatewayURL})
	return nil
}

// Shutdown clears all local state. Safe to call on an already-clean provider.
func (p *OpenClawProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.agents = make(map[string]*types.AgentStatus)
	p.roster = nil
	p.tasks = make(map[string]*types.TaskStatus)
	p.order = nil
	p.initialized = false
	p.mu.Unlock()

	p.opts.publish(eventbus.EventProviderShutdown, TypeOpenClaw, nil)
	return nil
}

// syncAgents pulls the roster from the gateway and reconciles the local
// map: metadata refresh for known agents, fresh idle entries for new ones,
// removal of agents the gateway no longer reports.
func (p *OpenClawProvider) syncAgents(ctx context.Context) error {
	remote, err := p.cli.Agents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool, len(remote))
	for _, ra := range remote {
		id := ra.Key()
		if id == "" {
			continue
		}
		seen[id] = true

		meta := map[string]interface{}{
			"workspace":  ra.Workspace,
			"model":      ra.Model,
			"is_default": ra.IsDefault,
			"bindings":   ra.Bindings,
			"provider":   TypeOpenClaw,
		}

		if agent, ok := p.agents[id]; ok {
			for k, v := range meta {
				agent.Metadata[k] = v
			}
			continue
		}

		name := ra.Name
		if name == "" {
			name = id
		}
		now := time.Now().UTC()
		p.agents[id] = &types.AgentStatus{
			AgentID:      id,
			Name:         name,
			Status:       types.AgentStateIdle,
			LastActivity: &now,
			Metadata:     meta,
		}
		p.roster = append(p.roster, id)
	}

	for id := range p.agents {
		if !seen[id] {
			delete(p.agents, id)
			p.roster = removeID(p.roster, id)
		}
	}
	return nil
}

// ListAgents resyncs against the gateway and returns the roster. A failed
// resync degrades to the last known local roster.
func (p *OpenClawProvider) ListAgents(ctx context.Context) ([]*types.AgentStatus, error) {
	if err := p.syncAgents(ctx); err != nil {
		p.logger.Warn("agent resync failed, serving local roster", "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*types.AgentStatus, 0, len(p.roster))
	for _, id := range p.roster {
		out = append(out, p.agentSnapshot(p.agents[id]))
	}
	return out, nil
}

// GetAgentStatus returns one agent's status, resyncing first when the id
// is not known locally.
func (p *OpenClawProvider) GetAgentStatus(ctx context.Context, agentID string) (*types.AgentStatus, error) {
	p.mu.Lock()
	_, known := p.agents[agentID]
	p.mu.Unlock()

	if !known {
		if err := p.syncAgents(ctx); err != nil {
			p.logger.Warn("agent resync failed", "error", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return p.agentSnapshot(agent), nil
}

// CreateAgent registers the agent on the gateway and records it locally.
// A failed remote registration is logged and the local record kept: the
// returned status reflects local bookkeeping only. Duplicate ids follow
// create-or-replace semantics.
func (p *OpenClawProvider) CreateAgent(ctx context.Context, cfg *types.AgentConfig) (*types.AgentStatus, error) {
	if err := p.cli.AddAgent(ctx, cfg.AgentID); err != nil {
		p.logger.Warn("gateway agent add failed, registering locally", "agent_id", cfg.AgentID, "error", err)
	} else {
		p.logger.Info("created gateway agent", "agent_id", cfg.AgentID)
	}

	model := cfg.Model
	if model == "" {
		model = p.defaultModel
	}
	workspace := cfg.WorkspacePath
	if workspace == "" {
		workspace = p.workspace
	}

	now := time.Now().UTC()
	status := &types.AgentStatus{
		AgentID:      cfg.AgentID,
		Name:         cfg.Name,
		Status:       types.AgentStateIdle,
		LastActivity: &now,
		Metadata: map[string]interface{}{
			"description": cfg.Description,
			"tools":       cfg.Tools,
			"model":       model,
			"workspace":   workspace,
			"provider":    TypeOpenClaw,
		},
	}

	p.mu.Lock()
	if _, exists := p.agents[cfg.AgentID]; !exists {
		p.roster = append(p.roster, cfg.AgentID)
	}
	p.agents[cfg.AgentID] = status
	snapshot := p.agentSnapshot(status)
	p.mu.Unlock()

	p.opts.publish(eventbus.EventAgentCreated, TypeOpenClaw, map[string]interface{}{"agent_id": cfg.AgentID})
	return snapshot, nil
}

// DeleteAgent attempts the remote deletion, then cleans up local state
// regardless. A remote failure never crashes the caller.
func (p *OpenClawProvider) DeleteAgent(ctx context.Context, agentID string) (bool, error) {
	if err := p.cli.DeleteAgent(ctx, agentID); err != nil {
		p.logger.Warn("gateway agent delete failed", "agent_id", agentID, "error", err)
	}

	p.mu.Lock()
	_, ok := p.agents[agentID]
	if ok {
		delete(p.agents, agentID)
		p.roster = removeID(p.roster, agentID)
	}
	p.mu.Unlock()

	if ok {
		p.opts.publish(eventbus.EventAgentDeleted, TypeOpenClaw, map[string]interface{}{"agent_id": agentID})
	}
	return ok, nil
}

// SubmitTask registers the task as queued and launches the gateway run in
// the background. Auto-routing picks the first idle agent in roster order,
// then the gateway's default agent, then the conventional "main" agent.
func (p *OpenClawProvider) SubmitTask(ctx context.Context, req *types.TaskRequest) (*types.TaskStatus, error) {
	taskID := req.TaskID
	if taskID == "" {
		taskID = fmt.Sprintf("task-%s", uuid.NewString()[:8])
	}

	p.mu.Lock()
	agentID := req.AgentID
	if agentID == "" {
		agentID = p.firstIdleLocked()
	}
	if agentID == "" {
		agentID = p.defaultAgent
	}
	if agentID == "" {
		agentID = fallbackAgentID
	}

	metadata := copyMap(req.Metadata)
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["description"] = req.Description
	if req.InputData != nil {
		metadata["input_data"] = req.InputData
	}

	task := &types.TaskStatus{
		TaskID:    taskID,
		AgentID:   agentID,
		Status:    types.TaskStateQueued,
		Priority:  req.Priority,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
	p.tasks[taskID] = task
	p.order = append(p.order, taskID)
	snapshot := cloneTask(task)
	p.mu.Unlock()

	p.opts.publish(eventbus.EventTaskSubmitted, TypeOpenClaw, map[string]interface{}{
		"task_id":  taskID,
		"agent_id": agentID,
	})

	go p.execute(taskID, agentID, req)

	return snapshot, nil
}

// execute drives one task through the gateway CLI. Whatever branch fires,
// the bound agent is returned to idle. A task that was cancelled while the
// CLI was still running keeps its cancelled status: the guard here never
// overwrites a terminal state.
func (p *OpenClawProvider) execute(taskID, agentID string, req *types.TaskRequest) {
	p.mu.Lock()
	task, ok := p.tasks[taskID]
	if !ok || task.Status.Terminal() {
		p.releaseAgentLocked(agentID, taskID)
		p.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	task.Status = types.TaskStateRunning
	task.StartedAt = &now
	if agent, bound := p.agents[agentID]; bound {
		agent.Status = types.AgentStateBusy
		agent.CurrentTask = taskID
		agent.LastActivity = &now
	}
	p.mu.Unlock()

	p.opts.publish(eventbus.EventTaskStarted, TypeOpenClaw, map[string]interface{}{
		"task_id":  taskID,
		"agent_id": agentID,
	})

	timeout := p.taskTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	result, runErr := p.cli.RunAgent(context.Background(), agentID, req.Description, timeout)
	if runErr == nil && !result.OK() {
		detail := result.Raw
		if detail == "" {
			detail = "status=" + result.Status
		}
		if len(detail) > 500 {
			detail = detail[:500]
		}
		runErr = fmt.Errorf("agent returned non-ok result: %s", detail)
	}

	event := eventbus.EventTaskCompleted
	var elapsed float64

	p.mu.Lock()
	task, ok = p.tasks[taskID]
	if ok && !task.Status.Terminal() {
		done := time.Now().UTC()
		task.CompletedAt = &done
		if task.StartedAt != nil {
			elapsed = done.Sub(*task.StartedAt).Seconds()
		}

		if runErr == nil {
			task.Status = types.TaskStateCompleted
			task.Result = map[string]interface{}{
				"output":      result.Output(),
				"run_id":      result.RunID,
				"duration_ms": runMetaDuration(result),
				"model":       runMetaModel(result),
			}
			if agent, bound := p.agents[agentID]; bound {
				agent.TasksCompleted++
			}
		} else {
			task.Status = types.TaskStateFailed
			task.Error = runErr.Error()
			event = eventbus.EventTaskFailed
			if agent, bound := p.agents[agentID]; bound {
				agent.TasksFailed++
			}
			p.logger.Error("task failed", "task_id", taskID, "agent_id", agentID, "error", runErr)
		}
	} else {
		event = ""
	}
	p.releaseAgentLocked(agentID, taskID)
	p.mu.Unlock()

	if event != "" {
		p.opts.publish(event, TypeOpenClaw, map[string]interface{}{
			"task_id":          taskID,
			"agent_id":         agentID,
			"duration_seconds": elapsed,
		})
	}
}

// GetTaskStatus returns the current status of one task.
func (p *OpenClawProvider) GetTaskStatus(ctx context.Context, taskID string) (*types.TaskStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return cloneTask(task), nil
}

// CancelTask cancels a queued or running task. The in-flight CLI call is
// not interrupted; its execution goroutine observes the terminal state on
// return and discards its outcome.
func (p *OpenClawProvider) CancelTask(ctx context.Context, taskID string) (bool, error) {
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

	p.opts.publish(eventbus.EventTaskCancelled, TypeOpenClaw, map[string]interface{}{
		"task_id":  taskID,
		"agent_id": agentID,
	})
	return true, nil
}

// ListTasks filters tasks by agent and status, newest first.
func (p *OpenClawProvider) ListTasks(ctx context.Context, filter TaskFilter) ([]*types.TaskStatus, error) {
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
func (p *OpenClawProvider) SystemMetrics(ctx context.Context) (*types.SystemMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	metrics := aggregateMetrics(p.agents, p.tasks)
	metrics.Provider = TypeOpenClaw
	metrics.UptimeSeconds = time.Since(p.started).Seconds()
	return metrics, nil
}

// HealthCheck probes the gateway. An unreachable gateway yields an
// unhealthy report with the cause captured, never an error.
func (p *OpenClawProvider) HealthCheck(ctx context.Context) *types.Health {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	p.mu.Lock()
	agents, tasks := len(p.agents), len(p.tasks)
	initialized := p.initialized
	p.mu.Unlock()

	health := &types.Health{
		Provider:      TypeOpenClaw,
		Agents:        agents,
		Tasks:         tasks,
		UptimeSeconds: time.Since(p.started).Seconds(),
		Detail:        map[string]interface{}{"gateway_url": p.gatewayURL},
	}

	report, err := p.cli.Health(probeCtx)
	if err != nil {
		health.Status = types.HealthStatusUnhealthy
		health.Error = err.Error()
		return health
	}

	health.Detail["gateway_healthy"] = report.OK
	health.Detail["default_agent"] = report.DefaultAgentID
	if initialized && report.OK {
		health.Status = types.HealthStatusHealthy
	} else {
		health.Status = types.HealthStatusDegraded
	}
	return health
}

func (p *OpenClawProvider) firstIdleLocked() string {
	for _, id := range p.roster {
		if agent, ok := p.agents[id]; ok && agent.Status == types.AgentStateIdle {
			return id
		}
	}
	return ""
}

func (p *OpenClawProvider) releaseAgentLocked(agentID, taskID string) {
	agent, ok := p.agents[agentID]
	if !ok || agent.CurrentTask != taskID {
		return
	}
	now := time.Now().UTC()
	agent.Status = types.AgentStateIdle
	agent.CurrentTask = ""
	agent.LastActivity = &now
}

func (p *OpenClawProvider) agentSnapshot(agent *types.AgentStatus) *types.AgentStatus {
	c := cloneAgent(agent)
	c.UptimeSeconds = time.Since(p.started).Seconds()
	return c
}

func runMetaDuration(r *openclaw.RunResult) int64 {
	if r == nil || r.Result == nil {
		return 0
	}
	return r.Result.Meta.DurationMs
}

func runMetaModel(r *openclaw.RunResult) string {
	if r == nil || r.Result == nil {
		return ""
	}
	return r.Result.Meta.AgentMeta.Model
}
