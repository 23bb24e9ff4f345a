package providers

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry manages authentication providers by name. The first provider
// registered becomes the default.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]AuthenticationProvider
	defaultName string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]AuthenticationProvider),
	}
}

// RegisterProvider registers a provider instance
func (r *Registry) RegisterProvider(provider AuthenticationProvider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.ProviderName()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[name] = provider
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// SetDefault selects the provider returned by Default
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		return ErrProviderNotFound
	}
	r.defaultName = name
	return nil
}

// GetProvider retrieves a provider by name
func (r *Registry) GetProvider(name string) (AuthenticationProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// Default returns the default provider
func (r *Registry) Default() (AuthenticationProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[r.defaultName]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// ListProviders returns all registered provider names, sorted
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
