package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/model"
)

// Strategy names of the full catalogue.
const (
	Rehost     = "rehost"
	Replatform = "replatform"
	Refactor   = "refactor"
	Repurchase = "repurchase"
	Retain     = "retain"
	Retire     = "retire"
	Relocate   = "relocate"
)

// Catalogue lists every strategy name accepted for planning.
var Catalogue = []string{Rehost, Replatform, Refactor, Repurchase, Retain, Retire, Relocate}

// UnsupportedStrategyError reports a strategy that cannot be executed.
type UnsupportedStrategyError struct {
	Name   string
	Reason string
}

func (e *UnsupportedStrategyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported migration strategy %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("unsupported migration strategy %q", e.Name)
}

func (e *UnsupportedStrategyError) Unwrap() error { return cloud.ErrConfiguration }

// UnsupportedAssetTypeError reports an asset type a strategy cannot move.
type UnsupportedAssetTypeError struct {
	Strategy string
	Type     model.AssetType
}

func (e *UnsupportedAssetTypeError) Error() string {
	return fmt.Sprintf("%s does not support asset type %q", e.Strategy, e.Type)
}

func (e *UnsupportedAssetTypeError) Unwrap() error { return cloud.ErrConfiguration }

// Registry resolves strategy names to constructors. Names are case-insensitive.
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

// Register adds a strategy. A nil constructor registers a name that is valid
// for planning but cannot be executed.
func (r *Registry) Register(name string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("strategy name is required")
	}
	if _, exists := r.constructors[key]; exists {
		return fmt.Errorf("strategy %s already registered", key)
	}
	r.constructors[key] = ctor
	return nil
}

// Known reports whether name is a registered strategy, executable or not.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// New binds the named strategy to source and target. No adapter is called.
func (r *Registry) New(name string, source, target cloud.Adapter, opts Options) (Executor, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedStrategyError{Name: name}
	}
	if ctor == nil {
		return nil, &UnsupportedStrategyError{Name: name, Reason: "planning only, no automated execution"}
	}
	return ctor(source, target, opts.withDefaults()), nil
}

// Names returns every registered strategy name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Executable reports whether name resolves to an implemented strategy.
func (r *Registry) Executable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.constructors[strings.ToLower(strings.TrimSpace(name))]
	return ok && ctor != nil
}

// DefaultRegistry returns a registry holding the whole catalogue with
// rehost, replatform and refactor executable.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := map[string]Constructor{
		Rehost:     NewRehost,
		Replatform: NewReplatform,
		Refactor:   NewRefactor,
	}
	for _, name := range Catalogue {
		if err := r.Register(name, builtins[name]); err != nil {
			panic(err)
		}
	}
	return r
}
