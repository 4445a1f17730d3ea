package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stewardkit/steward/internal/metrics"
)

// Registration binds one entity type to its reconciliation
// collaborators. Zero-value Selector watches everything; a nil
// Finalizers registry means the type registers no finalizers.
type Registration struct {
	// Kind is the display name used in logs, metrics, and requeue
	// routing. It must be unique across registrations.
	Kind string
	// Namespace restricts the watch; empty follows the host-wide
	// namespace option.
	Namespace string
	// Repo is the client facade bound to the type.
	Repo EntityRepo
	// NewReconciler constructs a fresh reconciler per event.
	NewReconciler ReconcilerFactory
	// Finalizers holds the finalizers registered for the type.
	Finalizers *FinalizerRegistry
	// Selector produces the label selector for the watch.
	Selector SelectorResolver
}

// HostOptions carries the startup configuration of a Host.
type HostOptions struct {
	// Namespace restricts all watches to one namespace; empty means
	// all namespaces.
	Namespace string
	// FinalizerPolicy controls auto-attach/auto-detach behaviour.
	FinalizerPolicy FinalizerPolicy
}

// Host sequences the startup and shutdown of one watch loop per
// registered entity type plus the requeue drain pump. Start is
// non-blocking; Stop cancels and awaits the background tasks; Close
// disposes the requeue queue. Start/Stop may cycle (the leader gate
// does this on every leadership transition) while the generation
// cache and requeue queue keep their warm state across cycles.
type Host struct {
	opts    HostOptions
	cache   GenerationCache
	queue   *RequeueQueue
	log     *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	regs        []Registration
	dispatchers map[string]*Dispatcher
	cancel      context.CancelFunc
	group       *errgroup.Group
	closed      bool
}

// NewHost returns a host using cache and queue as the shared runtime
// state.
func NewHost(opts HostOptions, cache GenerationCache, queue *RequeueQueue, log *slog.Logger, m *metrics.Metrics) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{
		opts:        opts,
		cache:       cache,
		queue:       queue,
		log:         log,
		metrics:     m,
		dispatchers: make(map[string]*Dispatcher),
	}
}

// QueueLen reports the number of pending requeue entries in the
// shared queue.
func (h *Host) QueueLen() int64 {
	return int64(h.queue.Len())
}

// Running reports whether the watch loops are currently armed. The
// readiness probe uses it.
func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Register adds an entity type. Registrations made after Start take
// effect on the next Start cycle.
func (h *Host) Register(reg Registration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if reg.Namespace == "" {
		reg.Namespace = h.opts.Namespace
	}
	h.regs = append(h.regs, reg)
	h.dispatchers[reg.Kind] = NewDispatcher(
		reg.Kind,
		reg.Repo,
		h.cache,
		h.queue,
		reg.NewReconciler,
		reg.Finalizers,
		h.opts.FinalizerPolicy,
		h.log,
		h.metrics,
	)
}

// Start launches the watch loops and the requeue pump under a scope
// derived from ctx. It returns once the background tasks are running.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return &ErrQueueClosed{}
	}
	if h.cancel != nil {
		return errors.New("host already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	h.cancel = cancel
	h.group = group

	for _, reg := range h.regs {
		loop := newWatchLoop(
			reg.Kind,
			reg.Namespace,
			reg.Repo,
			reg.Selector,
			h.dispatchers[reg.Kind],
			h.log,
			h.metrics,
		)
		group.Go(func() error {
			loop.Run(groupCtx)
			return nil
		})
	}

	group.Go(func() error {
		h.pump(groupCtx)
		return nil
	})

	h.log.Info("operator host started", "registrations", len(h.regs))
	return nil
}

// Stop cancels the running scope and awaits the background tasks,
// bounded by ctx. In-flight event processing drains before Stop
// returns. Stopping a host that is not running is a no-op.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel, group := h.cancel, h.group
	h.cancel, h.group = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("operator host stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disposes the requeue queue after stopping. Double-close is a
// no-op.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.queue.Close()
}

// pump feeds due requeue entries back into the dispatcher as
// operator-origin events, routed by the entry's requeue kind.
func (h *Host) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case entry, ok := <-h.queue.Drain():
			if !ok {
				return
			}

			h.mu.Lock()
			dispatcher, registered := h.dispatchers[entry.Owner]
			h.mu.Unlock()

			if !registered {
				h.log.Warn("dropping requeue entry for unregistered type",
					"kind", entry.Owner,
					"name", entry.Entity.Name())
				continue
			}

			switch entry.Kind {
			case WatchEventAdded:
				dispatcher.ReconcileCreation(ctx, entry.Entity, TriggerOperator)
			case WatchEventModified:
				dispatcher.ReconcileModification(ctx, entry.Entity, TriggerOperator)
			case WatchEventDeleted:
				dispatcher.ReconcileDeletion(ctx, entry.Entity, TriggerOperator)
			}
		}
	}
}
