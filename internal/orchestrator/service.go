// Package orchestrator owns the provider lifecycle: a single service
// instance holds at most one active provider at a time and swaps it by
// shutting the previous one down first. The service is constructed
// explicitly and passed to the API layer; there is no package-level
// singleton.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"agentd/internal/eventbus"
	"agentd/internal/provider"
)

// ErrNotInitialized reports use of the service before Initialize succeeded.
var ErrNotInitialized = errors.New("agent service not initialized")

// Service manages the active provider. All methods are safe for concurrent
// use.
type Service struct {
	mu           sync.RWMutex
	provider     provider.Provider
	providerType string

	bus    *eventbus.Bus
	logger *slog.Logger
}

// NewService creates a service with no active provider. Callers must
// Initialize before use.
func NewService(bus *eventbus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bus: bus, logger: logger.With("component", "orchestrator")}
}

// Initialize installs a provider of the given type. Any previously active
// provider is shut down first; the two are never active concurrently. On
// any failure the service is left with no active provider.
func (s *Service) Initialize(ctx context.Context, providerType string, config map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider != nil {
		s.logger.Warn("replacing active provider", "previous", s.providerType, "next", providerType)
		if err := s.provider.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown of previous provider failed", "provider", s.providerType, "error", err)
		}
		s.provider = nil
		s.providerType = ""
	}

	p, err := provider.New(providerType, config, provider.Options{Logger: s.logger, Bus: s.bus})
	if err != nil {
		return err
	}

	if err := p.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s provider: %w", providerType, err)
	}

	s.provider = p
	s.providerType = providerType
	s.logger.Info("agent service initialized", "provider", providerType)
	return nil
}

// Provider returns the active provider, or ErrNotInitialized.
func (s *Service) Provider() (provider.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.provider == nil {
		return nil, ErrNotInitialized
	}
	return s.provider, nil
}

// ProviderType returns the active provider's type selector, or "".
func (s *Service) ProviderType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providerType
}

// Shutdown tears down the active provider and clears the reference. Safe
// to call when already shut down.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider == nil {
		return nil
	}

	err := s.provider.Shutdown(ctx)
	s.provider = nil
	s.providerType = ""
	s.logger.Info("agent service shut down")
	return err
}
