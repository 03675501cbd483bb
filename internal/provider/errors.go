package provider

import "errors"

var (
	// ErrAgentNotFound reports an unknown agent id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrTaskNotFound reports an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotInitialized reports an operation on a provider before Initialize.
	ErrNotInitialized = errors.New("provider not initialized")

	// ErrUnknownProviderType reports an unresolvable provider type selector.
	ErrUnknownProviderType = errors.New("unknown provider type")

	// ErrGatewayUnreachable reports that a required remote dependency could
	// not be reached at initialization time.
	ErrGatewayUnreachable = errors.New("gateway unreachable")
)
