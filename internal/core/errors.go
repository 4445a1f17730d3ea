package core

import "fmt"

// ErrTypeNotRegistered indicates that an event or requeue entry
// referenced an entity kind the host has no registration for.
type ErrTypeNotRegistered struct {
	Kind string
}

func (e *ErrTypeNotRegistered) Error() string {
	return fmt.Sprintf("entity type %s not registered", e.Kind)
}

// ErrNotReady indicates that a required subsystem (e.g. the watch
// host) has not been started yet.
type ErrNotReady struct {
	Subsystem string
}

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("%s not initialized", e.Subsystem)
}

// ErrQueueClosed indicates an enqueue after the requeue queue was
// disposed.
type ErrQueueClosed struct{}

func (e *ErrQueueClosed) Error() string {
	return "requeue queue closed"
}

// ErrFinalizerDetach indicates that removing a finalizer identifier
// could not be persisted through the client. It is surfaced as a
// reconciliation failure so the pass is retried.
type ErrFinalizerDetach struct {
	Identifier string
	Cause      error
}

func (e *ErrFinalizerDetach) Error() string {
	return fmt.Sprintf("failed to detach finalizer %q: %v", e.Identifier, e.Cause)
}

func (e *ErrFinalizerDetach) Unwrap() error {
	return e.Cause
}
