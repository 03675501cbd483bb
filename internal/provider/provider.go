// Package provider defines the pluggable backend contract for agent
// orchestration and its concrete implementations: an in-memory simulator
// and a provider driving the OpenClaw gateway through its CLI.
package provider

import (
	"context"
	"log/slog"

	"agentd/internal/eventbus"
	"agentd/pkg/types"
)

// TaskFilter narrows ListTasks results. Zero values mean no filtering;
// a Limit of zero or less falls back to DefaultTaskLimit.
type TaskFilter struct {
	AgentID string
	Status  types.TaskState
	Limit   int
}

// DefaultTaskLimit caps ListTasks results when no limit is given.
const DefaultTaskLimit = 100

// Provider is the contract every orchestration backend implements.
//
// Initialize establishes readiness and must be called before any other
// operation. SubmitTask returns immediately with a queued status; execution
// happens in a background goroutine and is observed by polling
// GetTaskStatus. HealthCheck never fails: an unreachable backend is
// reported as unhealthy with the cause captured in the report.
type Provider interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	ListAgents(ctx context.Context) ([]*types.AgentStatus, error)
	GetAgentStatus(ctx context.Context, agentID string) (*types.AgentStatus, error)
	CreateAgent(ctx context.Context, cfg *types.AgentConfig) (*types.AgentStatus, error)
	DeleteAgent(ctx context.Context, agentID string) (bool, error)

	SubmitTask(ctx context.Context, req *types.TaskRequest) (*types.TaskStatus, error)
	GetTaskStatus(ctx context.Context, taskID string) (*types.TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) (bool, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*types.TaskStatus, error)

	SystemMetrics(ctx context.Context) (*types.SystemMetrics, error)
	HealthCheck(ctx context.Context) *types.Health

	Type() string
}

// Options carries the shared dependencies injected into every provider.
type Options struct {
	Logger *slog.Logger
	Bus    *eventbus.Bus
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) publish(eventType eventbus.EventType, source string, data map[string]interface{}) {
	if o.Bus == nil {
		return
	}
	o.Bus.Publish(&eventbus.Event{Type: eventType, Source: source, Data: data})
}
