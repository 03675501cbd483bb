package provider

import "agentd/pkg/types"

// aggregateMetrics computes the shared counts over agent and task
// collections. Provider tag and uptime are filled in by the caller. The
// average task time is the arithmetic mean of completed_at - started_at
// over completed tasks having both timestamps, zero when there are none.
// Failed and cancelled tasks carry timestamps too but do not count.
func aggregateMetrics(agents map[string]*types.AgentStatus, tasks map[string]*types.TaskStatus) *types.SystemMetrics {
	m := &types.SystemMetrics{TotalAgents: len(agents)}

	for _, a := range agents {
		switch a.Status {
		case types.AgentStateIdle:
			m.IdleAgents++
			m.ActiveAgents++
		case types.AgentStateBusy:
			m.BusyAgents++
			m.ActiveAgents++
		case types.AgentStateError:
			m.ErrorAgents++
		}
	}

	var totalSeconds float64
	var timed int
	for _, t := range tasks {
		switch t.Status {
		case types.TaskStateQueued:
			m.TotalTasksQueued++
		case types.TaskStateRunning:
			m.TotalTasksRunning++
		case types.TaskStateCompleted:
			m.TotalTasksCompleted++
		case types.TaskStateFailed:
			m.TotalTasksFailed++
		}
		if t.Status == types.TaskStateCompleted && t.StartedAt != nil && t.CompletedAt != nil {
			totalSeconds += t.CompletedAt.Sub(*t.StartedAt).Seconds()
			timed++
		}
	}
	if timed > 0 {
		m.AverageTaskTimeSeconds = totalSeconds / float64(timed)
	}

	return m
}
