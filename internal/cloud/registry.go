package cloud

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codebypatrickleung/cloudhop/internal/logger"
)

// Options carries process-level collaborators into adapter constructors.
type Options struct {
	Logger *logger.Logger
	Caller *Caller
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	if o.Caller == nil {
		o.Caller = NewCaller(CallerConfig{}, o.Logger)
	}
	return o
}

// Constructor builds an adapter for one set of credentials.
type Constructor func(ctx context.Context, creds Credentials, opts Options) (Adapter, error)

// Registry resolves provider ids to adapter constructors.
type Registry struct {
	constructors map[string]Constructor
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register adds a constructor under a case-insensitive provider id.
func (r *Registry) Register(provider string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := NormalizeProvider(provider)
	if key == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	if _, exists := r.constructors[key]; exists {
		return fmt.Errorf("adapter for provider %s already registered", key)
	}
	r.constructors[key] = ctor
	return nil
}

// New constructs a fresh adapter for creds. Adapters are never shared
// between calls.
func (r *Registry) New(ctx context.Context, creds Credentials, opts Options) (Adapter, error) {
	key := NormalizeProvider(creds.Provider)

	r.mu.RLock()
	ctor, exists := r.constructors[key]
	r.mu.RUnlock()
	if !exists {
		return nil, &UnsupportedProviderError{Provider: creds.Provider}
	}

	creds.Provider = key
	adapter, err := ctor(ctx, creds, opts.WithDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", key, err)
	}
	return adapter, nil
}

// Providers returns the registered provider ids in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Factory resolves credentials to adapters.
type Factory interface {
	New(ctx context.Context, creds Credentials, opts Options) (Adapter, error)
}

var _ Factory = (*Registry)(nil)
