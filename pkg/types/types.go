// Package types defines the shared data model for agent orchestration:
// agent configuration and live status, task requests and live status, and
// the derived system-wide metrics snapshot. Providers own the collections;
// everything here is plain data safe to serialize at the API boundary.
package types

import "time"

// AgentState represents the current state of an agent.
type AgentState string

const (
	AgentStateActive  AgentState = "active"
	AgentStateIdle    AgentState = "idle"
	AgentStateBusy    AgentState = "busy"
	AgentStateError   AgentState = "error"
	AgentStateOffline AgentState = "offline"
)

// TaskState represents the current state of a task.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCancelled TaskState = "cancelled"
)

// Terminal reports whether no further transition is permitted out of s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// AgentCapability describes one named, parameterized tool an agent offers.
type AgentCapability struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Enabled     bool                   `json:"enabled"`
}

// AgentConfig is the creation input for an agent. AgentID is caller-supplied
// and immutable once created; Config carries provider-specific settings.
type AgentConfig struct {
	AgentID            string                 `json:"agent_id"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description"`
	Provider           string                 `json:"provider"`
	Capabilities       []AgentCapability      `json:"capabilities,omitempty"`
	MaxConcurrentTasks int                    `json:"max_concurrent_tasks"`
	WorkspacePath      string                 `json:"workspace_path,omitempty"`
	Model              string                 `json:"model,omitempty"`
	Temperature        float64                `json:"temperature"`
	Tools              []string               `json:"tools,omitempty"`
	Config             map[string]interface{} `json:"config,omitempty"`
}

// AgentStatus is the live view of an agent. CurrentTask is non-empty iff the
// agent is busy; the completed/failed counters never decrease.
type AgentStatus struct {
	AgentID        string                 `json:"agent_id"`
	Name           string                 `json:"name"`
	Status         AgentState             `json:"status"`
	CurrentTask    string                 `json:"current_task,omitempty"`
	TasksCompleted int                    `json:"tasks_completed"`
	TasksFailed    int                    `json:"tasks_failed"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	LastActivity   *time.Time             `json:"last_activity,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// TaskRequest is the submission input for a task. TaskID and AgentID are
// optional: a missing task id is generated, a missing agent id is
// auto-routed to an idle agent by the provider.
type TaskRequest struct {
	TaskID         string                 `json:"task_id,omitempty"`
	AgentID        string                 `json:"agent_id,omitempty"`
	Description    string                 `json:"description"`
	InputData      map[string]interface{} `json:"input_data,omitempty"`
	Priority       int                    `json:"priority"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// TaskStatus is the live view of a task. Lifecycle:
// queued -> running -> {completed | failed | cancelled}; cancelled is also
// reachable directly from queued. Error is set iff the task failed, Result
// is set iff it completed.
type TaskStatus struct {
	TaskID      string                 `json:"task_id"`
	AgentID     string                 `json:"agent_id,omitempty"`
	Status      TaskState              `json:"status"`
	Priority    int                    `json:"priority"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// SystemMetrics is a read-only snapshot aggregated on demand from the
// provider's current agent and task collections.
type SystemMetrics struct {
	TotalAgents            int     `json:"total_agents"`
	ActiveAgents           int     `json:"active_agents"`
	IdleAgents             int     `json:"idle_agents"`
	BusyAgents             int     `json:"busy_agents"`
	ErrorAgents            int     `json:"error_agents"`
	TotalTasksQueued       int     `json:"total_tasks_queued"`
	TotalTasksRunning      int     `json:"total_tasks_running"`
	TotalTasksCompleted    int     `json:"total_tasks_completed"`
	TotalTasksFailed       int     `json:"total_tasks_failed"`
	AverageTaskTimeSeconds float64 `json:"average_task_time_seconds"`
	Provider               string  `json:"provider"`
	UptimeSeconds          float64 `json:"uptime_seconds"`
}

// Health states reported by a provider health check.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)

// Health is a structured health summary. A health check never fails; when
// the backing system is down the report is "unhealthy" with Error set.
type Health struct {
	Status        string                 `json:"status"`
	Provider      string                 `json:"provider"`
	Agents        int                    `json:"agents"`
	Tasks         int                    `json:"tasks"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	Error         string                 `json:"error,omitempty"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
}
