package cloud

import (
	"context"
	"sync"
)

type skipRecorderKey struct{}

// SkipRecorder collects resources skipped during one discovery run.
// It is safe for concurrent use.
type SkipRecorder struct {
	provider string
	mu       sync.Mutex
	items    []ItemError
}

// NewSkipRecorder returns a recorder for provider.
func NewSkipRecorder(provider string) *SkipRecorder {
	return &SkipRecorder{provider: provider}
}

// Count returns the number of skipped items.
func (r *SkipRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Err returns a *PartialDiscoveryError describing the skipped items, or nil.
func (r *SkipRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return nil
	}
	items := make([]ItemError, len(r.items))
	copy(items, r.items)
	return &PartialDiscoveryError{Provider: r.provider, Items: items}
}

func (r *SkipRecorder) add(it ItemError) {
	r.mu.Lock()
	r.items = append(r.items, it)
	r.mu.Unlock()
}

// WithSkipRecorder attaches rec to ctx so adapters can report skipped items.
func WithSkipRecorder(ctx context.Context, rec *SkipRecorder) context.Context {
	return context.WithValue(ctx, skipRecorderKey{}, rec)
}

// RecordSkip reports that one resource could not be enumerated. Without a
// recorder on ctx the call is a no-op; adapters log the skip themselves.
func RecordSkip(ctx context.Context, kind, id string, err error) {
	if rec, ok := ctx.Value(skipRecorderKey{}).(*SkipRecorder); ok && rec != nil {
		rec.add(ItemError{Kind: kind, ID: id, Err: err})
	}
}
