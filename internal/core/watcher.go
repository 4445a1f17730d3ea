package core

import "context"

// WatchEventType represents the type of a resource watch event.
// This is a domain-level type that decouples the core layer from
// k8s.io/apimachinery/pkg/watch.EventType.
type WatchEventType string

const (
	WatchEventAdded    WatchEventType = "ADDED"
	WatchEventModified WatchEventType = "MODIFIED"
	WatchEventDeleted  WatchEventType = "DELETED"
	WatchEventBookmark WatchEventType = "BOOKMARK"
	WatchEventError    WatchEventType = "ERROR"
)

// WatchEvent represents a single event from a resource watch stream.
// Entity is set for ADDED/MODIFIED/DELETED and for BOOKMARK (where it
// carries only a fresh resource version). Err is set for ERROR events,
// converted from the server's status object by the adapter.
type WatchEvent struct {
	Type   WatchEventType
	Entity Entity
	Err    error
}

// EntityWatcher provides a channel of WatchEvents and a way to stop
// the underlying watch. It replaces the direct use of
// k8s.io/apimachinery/pkg/watch.Interface in the domain layer, keeping
// the core package free of client-go dependencies for watch
// operations. A single watcher represents one finite connection; the
// watch loop re-establishes it as needed.
type EntityWatcher interface {
	// ResultChan returns a channel that receives watch events.
	// The channel is closed when the watch ends or Stop is called.
	ResultChan() <-chan WatchEvent
	// Stop terminates the watch and closes the result channel.
	Stop()
}

// EntityRepo is the narrow client facade the runtime consumes for one
// entity type. Implementations live in the infrastructure layer.
type EntityRepo interface {
	// Watch opens an event subscription. An empty resourceVersion
	// requests re-list semantics; allowBookmarks asks the server to
	// emit periodic BOOKMARK events carrying a fresh cursor.
	Watch(ctx context.Context, namespace, resourceVersion, labelSelector string, allowBookmarks bool) (EntityWatcher, error)
	// Update writes the entity back, persisting metadata.finalizers
	// edits, and returns the stored object.
	Update(ctx context.Context, entity Entity) (Entity, error)
	// Get fetches a single entity by name, or nil if it does not
	// exist.
	Get(ctx context.Context, name, namespace string) (Entity, error)
}
