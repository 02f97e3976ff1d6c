package connector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/synqx/core/internal/logging"
)

// Factory constructs a fresh, unconnected Connector instance for a kind.
type Factory func() Connector

// ErrUnknownConnectorKind is returned by Registry.Get for a kind that was
// never registered, or whose registration failed at load time (§4.1
// "registration... must fail silently at load time... surface a clear
// error only when a consumer requests that exact kind").
type ErrUnknownConnectorKind struct{ Kind string }

func (e ErrUnknownConnectorKind) Error() string {
	return fmt.Sprintf("connector: unknown kind %q", e.Kind)
}

// Registry is a process-wide, concurrency-safe connector_kind -> factory
// map, mirroring the operator package's Registry shape.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	log       *logging.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory), log: logging.NewDefault("connector.registry")}
}

// Register installs factory under kind (lower-cased). If probe is non-nil
// and returns an error (e.g. the backend driver failed to load), the
// registration is skipped with a warning instead of panicking — matching
// §4.1's silent-skip-at-load-time rule.
func (r *Registry) Register(kind string, factory Factory, probe func() error) {
	kind = strings.ToLower(kind)
	if probe != nil {
		if err := probe(); err != nil {
			r.log.WithField("kind", kind).WithField("error", err.Error()).Warn("connector registration skipped")
			return
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Get instantiates a fresh Connector of the given kind.
func (r *Registry) Get(kind string) (Connector, error) {
	kind = strings.ToLower(kind)
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownConnectorKind{Kind: kind}
	}
	return factory(), nil
}

// Kinds returns every registered connector kind, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether conn implements the capability named by a type
// assertion against one of the typed interfaces above — a trait-membership
// check, never reflection (§9 design note 1).
func Supports[T any](conn Connector) (T, bool) {
	typed, ok := conn.(T)
	return typed, ok
}
