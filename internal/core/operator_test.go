package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// requeueOnceReconciler asks for one requeue on its first pass and
// succeeds plainly afterwards.
type requeueOnceReconciler struct {
	mu    sync.Mutex
	delay time.Duration
	calls int
}

func (r *requeueOnceReconciler) Reconcile(_ context.Context, _ Entity) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls == 1 {
		return SuccessAfter(r.delay)
	}
	return Success()
}

func (r *requeueOnceReconciler) Deleted(_ context.Context, _ Entity) Result {
	return Success()
}

func (r *requeueOnceReconciler) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestHost(t *testing.T, regs ...Registration) *Host {
	t.Helper()

	queue := NewRequeueQueue()
	host := NewHost(HostOptions{}, NewMemoryGenerationCache(), queue, nil, nil)
	t.Cleanup(host.Close)

	for _, reg := range regs {
		host.Register(reg)
	}
	return host
}

func TestHostStartStop(t *testing.T) {
	host := newTestHost(t, Registration{
		Kind:          "Widget",
		Repo:          &scriptedRepo{},
		NewReconciler: func() Reconciler { return &mockReconciler{} },
	})

	if host.Running() {
		t.Fatal("host running before Start")
	}

	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !host.Running() {
		t.Fatal("host not running after Start")
	}

	if err := host.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := host.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if host.Running() {
		t.Error("host running after Stop")
	}

	// Stopping again is a no-op.
	if err := host.Stop(stopCtx); err != nil {
		t.Errorf("double Stop: %v", err)
	}
}

func TestHostRestartCycle(t *testing.T) {
	host := newTestHost(t, Registration{
		Kind:          "Widget",
		Repo:          &scriptedRepo{},
		NewReconciler: func() Reconciler { return &mockReconciler{} },
	})

	for range 2 {
		if err := host.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := host.Stop(stopCtx); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		cancel()
	}
}

func TestHostPumpRedeliversRequeuedEntity(t *testing.T) {
	reconciler := &requeueOnceReconciler{delay: 30 * time.Millisecond}
	repo := &scriptedRepo{watchers: []EntityWatcher{closedWatcher(WatchEvent{
		Type:   WatchEventAdded,
		Entity: &fakeEntity{uid: "u3", kind: "Widget", generation: 1},
	})}}

	host := newTestHost(t, Registration{
		Kind:          "Widget",
		Repo:          repo,
		NewReconciler: func() Reconciler { return reconciler },
	})

	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = host.Stop(stopCtx)
	}()

	// First pass comes from the watch; the requeue pump must
	// deliver the second pass after the requested delay.
	deadline := time.After(2 * time.Second)
	for reconciler.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("reconciler calls = %d, want 2", reconciler.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := host.QueueLen(); got != 0 {
		t.Errorf("pending requeue entries = %d, want 0", got)
	}
}

func TestHostDropsRequeueForUnregisteredOwner(t *testing.T) {
	host := newTestHost(t, Registration{
		Kind:          "Widget",
		Repo:          &scriptedRepo{},
		NewReconciler: func() Reconciler { return &mockReconciler{} },
	})

	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = host.Stop(stopCtx)
	}()

	if err := host.queue.Enqueue("Gadget", &fakeEntity{uid: "u9", kind: "Gadget"}, WatchEventModified, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for host.QueueLen() > 0 {
		select {
		case <-deadline:
			t.Fatal("entry for unregistered owner never drained")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHostCloseIsIdempotent(t *testing.T) {
	host := newTestHost(t)
	host.Close()
	host.Close()

	if err := host.Start(context.Background()); err == nil {
		t.Error("Start after Close should fail")
	}
}
