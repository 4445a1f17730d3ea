package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/stewardkit/steward/internal/metrics"
)

// maxReconnectExponent clamps the exponential backoff at 2^5 = 32s.
const maxReconnectExponent = 5

// reconnectDelay returns the sleep before the n-th consecutive
// reconnect attempt: 2^min(n,5) seconds plus uniform jitter in
// [0, 1s).
func reconnectDelay(attempts int) time.Duration {
	exp := attempts
	if exp > maxReconnectExponent {
		exp = maxReconnectExponent
	}
	base := time.Duration(1<<exp) * time.Second
	return base + time.Duration(rand.Int64N(int64(time.Second)))
}

// sleepCtx blocks for d or until ctx is done.
// Returns true if the sleep completed (context still alive).
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// streamOutcome describes how one watch connection ended.
type streamOutcome int

const (
	// streamEnded covers benign terminations: server-side timeout,
	// empty stream, 410/504 handling. The loop reconnects without
	// backoff.
	streamEnded streamOutcome = iota
	// streamFailed covers unexpected errors; the loop backs off
	// before reconnecting.
	streamFailed
	// streamCanceled means the context was cancelled; the loop
	// exits.
	streamCanceled
)

// watchLoop maintains the resumable event subscription for one entity
// type. Events are consumed strictly sequentially: a new event is not
// read until the previous event's dispatch returns, which is the
// runtime's central ordering guarantee.
type watchLoop struct {
	kind       string
	namespace  string
	repo       EntityRepo
	selector   SelectorResolver
	dispatcher *Dispatcher

	log     *slog.Logger
	metrics *metrics.Metrics

	// resourceVersion is the current watch cursor; empty forces
	// re-list semantics on the next connection.
	resourceVersion string
	// attempts counts consecutive failed connections. It resets on
	// every successfully processed event so a long-lived healthy
	// stream never pins the backoff at its maximum.
	attempts int
}

func newWatchLoop(
	kind, namespace string,
	repo EntityRepo,
	selector SelectorResolver,
	dispatcher *Dispatcher,
	log *slog.Logger,
	m *metrics.Metrics,
) *watchLoop {
	if selector == nil {
		selector = StaticSelector("")
	}
	if log == nil {
		log = slog.Default()
	}
	return &watchLoop{
		kind:       kind,
		namespace:  namespace,
		repo:       repo,
		selector:   selector,
		dispatcher: dispatcher,
		log:        log.With("kind", kind, "namespace", namespace),
		metrics:    m,
	}
}

// Run connects, consumes, and reconnects until ctx is cancelled.
func (w *watchLoop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.log.Info("watch loop stopped")
			return
		}

		switch w.connect(ctx) {
		case streamCanceled:
			w.log.Info("watch loop stopped")
			return
		case streamFailed:
			w.attempts++
			delay := reconnectDelay(w.attempts)
			w.log.Warn("watch stream failed, backing off",
				"attempts", w.attempts,
				"delay", delay)
			if !sleepCtx(ctx, delay) {
				w.log.Info("watch loop stopped")
				return
			}
		case streamEnded:
			// Benign end of stream; reconnect right away.
		}

		w.metrics.RecordReconnect(ctx, w.kind)
	}
}

// connect opens one watch connection and consumes it to completion.
func (w *watchLoop) connect(ctx context.Context) streamOutcome {
	labelSelector, err := w.selector.Resolve()
	if err != nil {
		w.log.Error("failed to resolve label selector", "error", err)
		return streamFailed
	}

	watcher, err := w.repo.Watch(ctx, w.namespace, w.resourceVersion, labelSelector, true)
	if err != nil {
		return w.classifyStreamError(err)
	}
	defer watcher.Stop()

	log := w.log.With("watch_session", uuid.NewString())
	log.Debug("watch stream established", "resource_version", w.resourceVersion, "label_selector", labelSelector)

	for {
		select {
		case <-ctx.Done():
			return streamCanceled

		case event, ok := <-watcher.ResultChan():
			if !ok {
				// The server closes the stream after its
				// watch timeout; treat as a healthy end.
				log.Debug("watch stream ended")
				return streamEnded
			}

			if outcome, terminal := w.handleEvent(ctx, log, event); terminal {
				return outcome
			}
		}
	}
}

// handleEvent processes a single event. The second return value is
// true when the connection must be torn down.
func (w *watchLoop) handleEvent(ctx context.Context, log *slog.Logger, event WatchEvent) (streamOutcome, bool) {
	switch event.Type {
	case WatchEventBookmark:
		w.resourceVersion = event.Entity.ResourceVersion()
		w.attempts = 0
		log.Debug("bookmark received", "resource_version", w.resourceVersion)
		return streamEnded, false

	case WatchEventAdded, WatchEventModified, WatchEventDeleted:
		log.Debug("event received", "event_type", string(event.Type), "name", event.Entity.Name())
		w.dispatch(ctx, event)
		if ctx.Err() != nil {
			return streamCanceled, true
		}
		w.attempts = 0
		return streamEnded, false

	case WatchEventError:
		return w.classifyStreamError(event.Err), true

	default:
		log.Warn("unsupported watch event type, skipping", "event_type", string(event.Type))
		return streamEnded, false
	}
}

func (w *watchLoop) dispatch(ctx context.Context, event WatchEvent) {
	switch event.Type {
	case WatchEventAdded:
		w.dispatcher.ReconcileCreation(ctx, event.Entity, TriggerAPIServer)
	case WatchEventModified:
		w.dispatcher.ReconcileModification(ctx, event.Entity, TriggerAPIServer)
	case WatchEventDeleted:
		w.dispatcher.ReconcileDeletion(ctx, event.Entity, TriggerAPIServer)
	}
}

// classifyStreamError maps a watch error to the reconnect behaviour
// mandated for it. 410 drops the cursor (forcing a re-list), 504 and
// benign end-of-stream reconnect with the cursor intact, anything
// else backs off.
func (w *watchLoop) classifyStreamError(err error) streamOutcome {
	switch {
	case err == nil:
		return streamEnded

	case apierrors.IsResourceExpired(err) || apierrors.IsGone(err):
		w.log.Info("watch cursor expired, resetting for re-list", "error", err)
		w.resourceVersion = ""
		return streamEnded

	case apierrors.IsTimeout(err):
		w.log.Debug("watch stream timed out", "error", err)
		return streamEnded

	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// No instances yet, or the server hung up mid-frame.
		w.log.Debug("watch stream ended early", "error", err)
		return streamEnded

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return streamCanceled

	default:
		w.log.Error("watch stream error", "error", err)
		return streamFailed
	}
}
