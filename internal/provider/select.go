package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shineum/postmail/internal/config"
)

// Registry names of the two delivery methods.
const (
	NameAPI  = "postmail_api"
	NameSMTP = "postmail_smtp"
)

// Factory builds a provider from a resolved configuration.
type Factory func(cfg *config.Config) (Provider, error)

// Registry maps delivery method names to provider factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Select builds the provider chosen by cfg.DeliveryMethod.
// "api" selects the HTTP relay; any other value, including an unset or
// unrecognized one, falls back to SMTP.
func (r *Registry) Select(cfg *config.Config) (Provider, error) {
	if !cfg.DeliveryMethod.Known() {
		slog.Warn("unknown delivery method, falling back to smtp",
			"delivery_method", string(cfg.DeliveryMethod),
		)
	}

	name := MethodName(cfg.DeliveryMethod)

	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("delivery method %q is not registered", name)
	}

	p, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	return p, nil
}

// MethodName maps a configured delivery method to its registry name.
func MethodName(m config.DeliveryMethod) string {
	switch m {
	case config.MethodAPI:
		return NameAPI
	default:
		return NameSMTP
	}
}
