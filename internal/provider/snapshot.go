package provider

import "agentd/pkg/types"

// Providers hand out copies of their records so callers never observe a
// struct being mutated by a background execution goroutine.

func cloneAgent(a *types.AgentStatus) *types.AgentStatus {
	c := *a
	c.Metadata = copyMap(a.Metadata)
	return &c
}

func cloneTask(t *types.TaskStatus) *types.TaskStatus {
	c := *t
	c.Metadata = copyMap(t.Metadata)
	c.Result = copyMap(t.Result)
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// configString reads a string value from an opaque provider config mapping.
func configString(cfg map[string]interface{}, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// configInt reads an integer value, tolerating the float64 that JSON and
// YAML decoding produce for numbers.
func configInt(cfg map[string]interface{}, key string, fallback int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
