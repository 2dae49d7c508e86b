package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pedrosoares/godot-whisper/pkg/stt"
)

// ErrEngineNotRegistered is returned by [Registry.CreateEngine] when no
// factory has been registered under the requested engine name.
var ErrEngineNotRegistered = errors.New("config: engine not registered")

// EngineFactory constructs a speech-inference engine from its configuration.
type EngineFactory func(STTConfig) (stt.Engine, error)

// Registry maps engine names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]EngineFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]EngineFactory),
	}
}

// RegisterEngine registers an engine factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// CreateEngine instantiates the engine selected by cfg.Engine.
// Returns [ErrEngineNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateEngine(cfg STTConfig) (stt.Engine, error) {
	r.mu.RLock()
	factory, ok := r.engines[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}

// Names returns the registered engine names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}
