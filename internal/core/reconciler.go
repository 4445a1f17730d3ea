package core

import (
	"context"
	"strings"
	"sync"
)

// Reconciler is the user-supplied reconciliation logic for one entity
// type. Implementations must be idempotent: the runtime is
// at-least-once across restarts and will re-deliver events whose
// pass requested a requeue, whether it succeeded or failed.
type Reconciler interface {
	// Reconcile is invoked for created and modified entities that
	// pass the generation gate. It must honour ctx cancellation.
	Reconcile(ctx context.Context, entity Entity) Result
	// Deleted is invoked once the entity is gone from the API
	// server.
	Deleted(ctx context.Context, entity Entity) Result
}

// ReconcilerFactory constructs a fresh reconciler per event. It
// replaces per-event dependency-injection scopes: the lifecycle host
// holds one factory per entity type and the dispatcher calls it for
// every reconciliation pass.
type ReconcilerFactory func() Reconciler

// Finalizer performs cleanup for an entity pending deletion. Its
// registered identifier gates the deletion until Finalize succeeds
// and the identifier is removed from metadata.finalizers.
type Finalizer interface {
	Finalize(ctx context.Context, entity Entity) Result
}

// FinalizerFunc adapts an ordinary function to the Finalizer
// interface.
type FinalizerFunc func(ctx context.Context, entity Entity) Result

func (f FinalizerFunc) Finalize(ctx context.Context, entity Entity) Result {
	return f(ctx, entity)
}

const (
	finalizerSuffix = "finalizer"

	// maxFinalizerLength caps the length of the whole derived
	// identifier, group and slash included.
	maxFinalizerLength = 63
)

// FinalizerIdentifier derives the identifier a finalizer is registered
// under: "{group}/{name}" lowercased, with a "finalizer" suffix
// appended when the name lacks one, truncated to 63 characters.
func FinalizerIdentifier(group, name string) string {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, finalizerSuffix) {
		name += finalizerSuffix
	}
	id := strings.ToLower(group) + "/" + name
	if len(id) > maxFinalizerLength {
		id = id[:maxFinalizerLength]
	}
	return id
}

// FinalizerRegistry holds the finalizers registered for one entity
// type, keyed by identifier. It is safe for concurrent use; in
// practice registration happens before the host starts and lookups
// afterwards.
type FinalizerRegistry struct {
	mu         sync.RWMutex
	finalizers map[string]Finalizer
}

// NewFinalizerRegistry returns an empty registry.
func NewFinalizerRegistry() *FinalizerRegistry {
	return &FinalizerRegistry{
		finalizers: make(map[string]Finalizer),
	}
}

// Register stores f under the identifier derived from group and name
// and returns that identifier.
func (r *FinalizerRegistry) Register(group, name string, f Finalizer) string {
	id := FinalizerIdentifier(group, name)
	r.mu.Lock()
	r.finalizers[id] = f
	r.mu.Unlock()
	return id
}

// Lookup returns the finalizer registered under id, if any.
func (r *FinalizerRegistry) Lookup(id string) (Finalizer, bool) {
	r.mu.RLock()
	f, ok := r.finalizers[id]
	r.mu.RUnlock()
	return f, ok
}

// Identifiers returns all registered identifiers in unspecified
// order. Used by the auto-attach policy.
func (r *FinalizerRegistry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.finalizers))
	for id := range r.finalizers {
		ids = append(ids, id)
	}
	return ids
}
