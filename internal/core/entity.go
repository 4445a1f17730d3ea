package core

import "time"

// Entity is the structural contract the runtime requires from a watched
// Kubernetes object. Adapters in the infrastructure layer (e.g.
// internal/kubernetes) satisfy it for unstructured objects; the core
// never inspects anything beyond these accessors.
type Entity interface {
	// UID returns the opaque, stable identifier assigned by the API
	// server. It survives name reuse, which is why all runtime state
	// (generation cache, requeue queue) is keyed on it.
	UID() string
	// Name returns metadata.name.
	Name() string
	// Namespace returns metadata.namespace, empty for cluster-scoped
	// objects.
	Namespace() string
	// Kind returns the object kind.
	Kind() string
	// APIVersion returns the group/version string.
	APIVersion() string
	// Generation returns metadata.generation, or 0 when the field is
	// absent. The API server advances it only on spec changes.
	Generation() int64
	// ResourceVersion returns the opaque watch cursor of the object.
	ResourceVersion() string
	// DeletionTimestamp returns metadata.deletionTimestamp, or nil
	// while the object is not being deleted.
	DeletionTimestamp() *time.Time
	// Finalizers returns metadata.finalizers in order.
	Finalizers() []string
	// SetFinalizers replaces metadata.finalizers on the in-memory
	// object. The change is persisted via EntityRepo.Update.
	SetFinalizers(finalizers []string)
}

// TriggerSource identifies where a reconciliation request originated.
type TriggerSource string

const (
	// TriggerAPIServer marks events delivered by the watch stream.
	TriggerAPIServer TriggerSource = "api-server"
	// TriggerOperator marks events re-delivered by the requeue queue.
	TriggerOperator TriggerSource = "operator"
)

// Result is the outcome of a single reconciler, finalizer, or
// dispatcher invocation. A non-nil Err marks the pass as failed; the
// runtime logs it and never propagates it as an operator-level error.
// A positive RequeueAfter schedules re-delivery of the entity after
// the given delay regardless of outcome.
type Result struct {
	Err          error
	RequeueAfter time.Duration
}

// Failed reports whether the pass ended in failure.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Success returns a successful Result without requeue.
func Success() Result {
	return Result{}
}

// SuccessAfter returns a successful Result that asks for re-delivery
// after d.
func SuccessAfter(d time.Duration) Result {
	return Result{RequeueAfter: d}
}

// Failure returns a failed Result carrying err.
func Failure(err error) Result {
	return Result{Err: err}
}

// FailureAfter returns a failed Result that asks for a retry after d.
func FailureAfter(err error, d time.Duration) Result {
	return Result{Err: err, RequeueAfter: d}
}
