package provider

import "fmt"

// Provider type selectors understood by New.
const (
	TypeMemory   = "memory"
	TypeOpenClaw = "openclaw"
)

// New resolves a provider type selector to a concrete provider. The config
// mapping is provider-specific and passed through uninterpreted.
func New(providerType string, config map[string]interface{}, opts Options) (Provider, error) {
	switch providerType {
	case TypeMemory:
		return NewMemoryProvider(config, opts), nil
	case TypeOpenClaw:
		return NewOpenClawProvider(config, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProviderType, providerType)
	}
}
