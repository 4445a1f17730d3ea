package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stewardkit/steward/internal/metrics"
)

// FinalizerPolicy controls how the dispatcher manages the
// metadata.finalizers list of watched entities.
type FinalizerPolicy struct {
	// AutoAttach appends missing registered finalizer identifiers
	// before a spec change is reconciled, persisting via the client.
	AutoAttach bool
	// AutoDetach removes the matched identifier after a successful
	// finalize call, persisting via the client.
	AutoDetach bool
}

// Dispatcher classifies incoming events for one entity type and
// drives the user reconciler, finalizer, or skip path. User failures
// are logged, and scheduled for retry when they carry a RequeueAfter;
// they are never surfaced as operator-level errors. Callers serialize invocations per watch
// stream; the dispatcher itself holds no per-entity locks.
type Dispatcher struct {
	kind          string
	repo          EntityRepo
	cache         GenerationCache
	queue         *RequeueQueue
	newReconciler ReconcilerFactory
	finalizers    *FinalizerRegistry
	policy        FinalizerPolicy

	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewDispatcher wires a dispatcher for one entity type. finalizers
// may be nil when the type registers none.
func NewDispatcher(
	kind string,
	repo EntityRepo,
	cache GenerationCache,
	queue *RequeueQueue,
	factory ReconcilerFactory,
	finalizers *FinalizerRegistry,
	policy FinalizerPolicy,
	log *slog.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if finalizers == nil {
		finalizers = NewFinalizerRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		kind:          kind,
		repo:          repo,
		cache:         cache,
		queue:         queue,
		newReconciler: factory,
		finalizers:    finalizers,
		policy:        policy,
		log:           log,
		metrics:       m,
		tracer:        otel.Tracer("github.com/stewardkit/steward/internal/core"),
	}
}

// ReconcileCreation handles an ADDED event or its requeue
// re-delivery.
func (d *Dispatcher) ReconcileCreation(ctx context.Context, entity Entity, source TriggerSource) Result {
	ctx, span, log := d.begin(ctx, WatchEventAdded, entity, source)
	defer span.End()

	d.queue.Remove(entity)

	if entity.DeletionTimestamp() != nil {
		log.Info("entity arrived with deletion timestamp, leaving it to the deletion path")
		return d.finish(ctx, log, WatchEventAdded, Success())
	}

	if source == TriggerAPIServer {
		_, cached, err := d.cache.TryGet(ctx, entity.UID())
		if err != nil {
			return d.finish(ctx, log, WatchEventAdded, Failure(fmt.Errorf("generation cache read: %w", err)))
		}
		if cached {
			log.Debug("entity already cached, skipping reconciliation")
			return d.finish(ctx, log, WatchEventAdded, Success())
		}
	}

	if err := d.cache.Set(ctx, entity.UID(), entity.Generation()); err != nil {
		return d.finish(ctx, log, WatchEventAdded, Failure(fmt.Errorf("generation cache write: %w", err)))
	}

	entity, res := d.attachFinalizers(ctx, log, entity)
	if res.Failed() {
		return d.finish(ctx, log, WatchEventAdded, res)
	}

	res = d.newReconciler().Reconcile(ctx, entity)

	if res.RequeueAfter > 0 && ctx.Err() == nil {
		kind := WatchEventModified
		if res.Failed() {
			kind = WatchEventAdded
		}
		d.enqueue(log, entity, kind, res)
	}

	return d.finish(ctx, log, WatchEventAdded, res)
}

// ReconcileModification handles a MODIFIED event or its requeue
// re-delivery, including the finalizer sub-protocol for entities
// pending deletion.
func (d *Dispatcher) ReconcileModification(ctx context.Context, entity Entity, source TriggerSource) Result {
	ctx, span, log := d.begin(ctx, WatchEventModified, entity, source)
	defer span.End()

	d.queue.Remove(entity)

	var res Result
	switch {
	case entity.DeletionTimestamp() == nil:
		if source == TriggerAPIServer {
			cachedGen, cached, err := d.cache.TryGet(ctx, entity.UID())
			if err != nil {
				return d.finish(ctx, log, WatchEventModified, Failure(fmt.Errorf("generation cache read: %w", err)))
			}
			if cached && cachedGen >= entity.Generation() {
				log.Debug("generation unchanged, skipping reconciliation",
					"cached_generation", cachedGen,
					"generation", entity.Generation())
				return d.finish(ctx, log, WatchEventModified, Success())
			}

			gen := entity.Generation()
			if gen == 0 {
				gen = 1
			}
			if err := d.cache.Set(ctx, entity.UID(), gen); err != nil {
				return d.finish(ctx, log, WatchEventModified, Failure(fmt.Errorf("generation cache write: %w", err)))
			}
		}

		var attached Result
		entity, attached = d.attachFinalizers(ctx, log, entity)
		if attached.Failed() {
			return d.finish(ctx, log, WatchEventModified, attached)
		}

		res = d.newReconciler().Reconcile(ctx, entity)

	case len(entity.Finalizers()) > 0:
		res = d.finalize(ctx, log, entity)

	default:
		// Deletion pending and nothing left to finalize; the
		// DELETED event will follow.
		res = Success()
	}

	if res.RequeueAfter > 0 && ctx.Err() == nil {
		d.enqueue(log, entity, WatchEventModified, res)
	}

	return d.finish(ctx, log, WatchEventModified, res)
}

// ReconcileDeletion handles a DELETED event or its requeue
// re-delivery.
func (d *Dispatcher) ReconcileDeletion(ctx context.Context, entity Entity, source TriggerSource) Result {
	ctx, span, log := d.begin(ctx, WatchEventDeleted, entity, source)
	defer span.End()

	d.queue.Remove(entity)

	res := d.newReconciler().Deleted(ctx, entity)

	if !res.Failed() {
		if err := d.cache.Remove(ctx, entity.UID()); err != nil {
			res = Result{Err: fmt.Errorf("generation cache evict: %w", err), RequeueAfter: res.RequeueAfter}
		}
	}

	if res.RequeueAfter > 0 && ctx.Err() == nil {
		d.enqueue(log, entity, WatchEventDeleted, res)
	}

	return d.finish(ctx, log, WatchEventDeleted, res)
}

// finalize runs one pass of the finalizer sub-protocol: the first
// identifier on the entity is looked up and invoked, and on success
// optionally detached. The Modified event raised by the detach update
// drives the next identifier.
func (d *Dispatcher) finalize(ctx context.Context, log *slog.Logger, entity Entity) Result {
	id := entity.Finalizers()[0]

	finalizer, ok := d.finalizers.Lookup(id)
	if !ok {
		log.Info("no finalizer registered for identifier, another controller owns it", "finalizer", id)
		return Success()
	}

	res := finalizer.Finalize(ctx, entity)
	if res.Failed() {
		return res
	}

	if d.policy.AutoDetach {
		remaining := slices.DeleteFunc(slices.Clone(entity.Finalizers()), func(s string) bool {
			return s == id
		})
		entity.SetFinalizers(remaining)

		if _, err := d.repo.Update(ctx, entity); err != nil {
			return Result{
				Err:          &ErrFinalizerDetach{Identifier: id, Cause: err},
				RequeueAfter: res.RequeueAfter,
			}
		}
		log.Info("finalizer detached", "finalizer", id)
	}

	return res
}

// attachFinalizers appends missing registered identifiers to the
// entity and persists the edit. It returns the stored entity so the
// reconciler sees the fresh resource version. Disabled policy or an
// empty registry make it a no-op.
func (d *Dispatcher) attachFinalizers(ctx context.Context, log *slog.Logger, entity Entity) (Entity, Result) {
	if !d.policy.AutoAttach {
		return entity, Success()
	}

	registered := d.finalizers.Identifiers()
	if len(registered) == 0 {
		return entity, Success()
	}
	slices.Sort(registered)

	current := entity.Finalizers()
	missing := slices.DeleteFunc(registered, func(id string) bool {
		return slices.Contains(current, id)
	})
	if len(missing) == 0 {
		return entity, Success()
	}

	entity.SetFinalizers(append(slices.Clone(current), missing...))

	updated, err := d.repo.Update(ctx, entity)
	if err != nil {
		return entity, Failure(fmt.Errorf("failed to attach finalizers %v: %w", missing, err))
	}
	log.Info("finalizers attached", "finalizers", missing)
	return updated, Success()
}

// begin opens the per-event tracing span and derives the scoped
// logger carrying the stable event fields.
func (d *Dispatcher) begin(ctx context.Context, eventType WatchEventType, entity Entity, source TriggerSource) (context.Context, trace.Span, *slog.Logger) {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("processing %q event", eventType),
		trace.WithAttributes(
			attribute.String("event_type", string(eventType)),
			attribute.String("kind", d.kind),
			attribute.String("name", entity.Name()),
			attribute.String("namespace", entity.Namespace()),
			attribute.String("resource_version", entity.ResourceVersion()),
			attribute.String("trigger_source", string(source)),
		))

	log := d.log.With(
		"event_type", string(eventType),
		"kind", d.kind,
		"name", entity.Name(),
		"namespace", entity.Namespace(),
		"resource_version", entity.ResourceVersion(),
		"trigger_source", string(source),
	)
	log.Debug("processing event")

	return ctx, span, log
}

// finish records the outcome. Failures from user code and cache
// plumbing are logged here and absorbed; callers receive the Result
// for requeue bookkeeping only.
func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, eventType WatchEventType, res Result) Result {
	outcome := "success"
	if res.Failed() {
		outcome = "failure"
		log.Error("reconciliation failed", "error", res.Err)
	}
	d.metrics.RecordReconciliation(ctx, d.kind, string(eventType), outcome)
	return res
}

func (d *Dispatcher) enqueue(log *slog.Logger, entity Entity, kind WatchEventType, res Result) {
	if err := d.queue.Enqueue(d.kind, entity, kind, res.RequeueAfter); err != nil {
		log.Warn("failed to schedule requeue", "error", err)
		return
	}
	log.Debug("requeue scheduled", "requeue_after", res.RequeueAfter, "requeue_kind", string(kind))
}
