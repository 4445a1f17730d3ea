package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// fakeWatcher replays a scripted event sequence.
type fakeWatcher struct {
	ch   chan WatchEvent
	once sync.Once
}

// closedWatcher yields the given events and then ends the stream.
func closedWatcher(events ...WatchEvent) *fakeWatcher {
	w := &fakeWatcher{ch: make(chan WatchEvent, len(events))}
	for _, e := range events {
		w.ch <- e
	}
	close(w.ch)
	return w
}

// openWatcher blocks until stopped, keeping the connection alive.
func openWatcher() *fakeWatcher {
	return &fakeWatcher{ch: make(chan WatchEvent)}
}

func (w *fakeWatcher) ResultChan() <-chan WatchEvent { return w.ch }

func (w *fakeWatcher) Stop() {
	w.once.Do(func() {
		select {
		case _, ok := <-w.ch:
			if ok {
				return // scripted watcher drains on its own
			}
		default:
			close(w.ch)
		}
	})
}

type watchCall struct {
	namespace       string
	resourceVersion string
	labelSelector   string
}

// scriptedRepo hands out the scripted watchers in order, then keeps
// the loop connected on an open watcher.
type scriptedRepo struct {
	mu       sync.Mutex
	watchers []EntityWatcher
	calls    []watchCall
}

func (r *scriptedRepo) Watch(_ context.Context, namespace, resourceVersion, labelSelector string, _ bool) (EntityWatcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, watchCall{
		namespace:       namespace,
		resourceVersion: resourceVersion,
		labelSelector:   labelSelector,
	})

	if len(r.watchers) > 0 {
		w := r.watchers[0]
		r.watchers = r.watchers[1:]
		return w, nil
	}
	return openWatcher(), nil
}

func (r *scriptedRepo) Update(_ context.Context, entity Entity) (Entity, error) {
	return entity, nil
}

func (r *scriptedRepo) Get(_ context.Context, _, _ string) (Entity, error) {
	return nil, nil
}

func (r *scriptedRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *scriptedRepo) call(i int) watchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

type watchLoopFixture struct {
	loop       *watchLoop
	repo       *scriptedRepo
	reconciler *mockReconciler
	queue      *RequeueQueue
}

func newWatchLoopFixture(t *testing.T, watchers ...EntityWatcher) *watchLoopFixture {
	t.Helper()

	f := &watchLoopFixture{
		repo:       &scriptedRepo{watchers: watchers},
		reconciler: &mockReconciler{},
		queue:      NewRequeueQueue(),
	}
	t.Cleanup(f.queue.Close)

	dispatcher := NewDispatcher(
		"Widget",
		f.repo,
		NewMemoryGenerationCache(),
		f.queue,
		func() Reconciler { return f.reconciler },
		nil,
		FinalizerPolicy{},
		nil,
		nil,
	)
	f.loop = newWatchLoop("Widget", "", f.repo, nil, dispatcher, nil, nil)
	return f
}

// runUntilConnects runs the loop until the repo has seen want
// connections, then cancels and waits for exit.
func (f *watchLoopFixture) runUntilConnects(t *testing.T, want int) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for f.repo.callCount() < want {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("loop made %d connections, want %d", f.repo.callCount(), want)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}

func TestWatchLoopBookmarkAdvancesCursorWithoutDispatch(t *testing.T) {
	f := newWatchLoopFixture(t, closedWatcher(WatchEvent{
		Type:   WatchEventBookmark,
		Entity: &fakeEntity{resourceVersion: "v5"},
	}))

	f.runUntilConnects(t, 2)

	if got := f.repo.call(1).resourceVersion; got != "v5" {
		t.Errorf("reconnect resource version = %q, want %q", got, "v5")
	}
	if f.reconciler.reconcileCalls() != 0 || f.reconciler.deletedCalls() != 0 {
		t.Error("bookmark must not reach the dispatcher")
	}
}

func TestWatchLoopGoneResetsCursor(t *testing.T) {
	f := newWatchLoopFixture(t, closedWatcher(WatchEvent{
		Type: WatchEventError,
		Err:  apierrors.NewResourceExpired("too old resource version"),
	}))
	f.loop.resourceVersion = "v123"

	f.runUntilConnects(t, 2)

	if got := f.repo.call(0).resourceVersion; got != "v123" {
		t.Errorf("first connection resource version = %q, want %q", got, "v123")
	}
	if got := f.repo.call(1).resourceVersion; got != "" {
		t.Errorf("post-410 resource version = %q, want empty (re-list)", got)
	}
	if f.reconciler.reconcileCalls() != 0 {
		t.Error("410 handling must not invoke user callbacks")
	}
}

func TestWatchLoopDispatchesEvents(t *testing.T) {
	f := newWatchLoopFixture(t, closedWatcher(
		WatchEvent{Type: WatchEventAdded, Entity: &fakeEntity{uid: "u1", generation: 1}},
		WatchEvent{Type: WatchEventModified, Entity: &fakeEntity{uid: "u1", generation: 2}},
		WatchEvent{Type: WatchEventDeleted, Entity: &fakeEntity{uid: "u1", generation: 2}},
	))

	f.runUntilConnects(t, 2)

	if got := f.reconciler.reconcileCalls(); got != 2 {
		t.Errorf("reconcile calls = %d, want 2", got)
	}
	if got := f.reconciler.deletedCalls(); got != 1 {
		t.Errorf("deleted calls = %d, want 1", got)
	}
}

func TestWatchLoopSkipsUnsupportedEventType(t *testing.T) {
	f := newWatchLoopFixture(t, closedWatcher(
		WatchEvent{Type: WatchEventType("WEIRD"), Entity: &fakeEntity{uid: "u1"}},
		WatchEvent{Type: WatchEventAdded, Entity: &fakeEntity{uid: "u1", generation: 1}},
	))

	f.runUntilConnects(t, 2)

	if got := f.reconciler.reconcileCalls(); got != 1 {
		t.Errorf("reconcile calls = %d, want 1", got)
	}
}

func TestWatchLoopSelectorErrorFailsConnection(t *testing.T) {
	f := newWatchLoopFixture(t)
	f.loop.selector = SelectorResolverFunc(func() (string, error) {
		return "", errors.New("bad selector")
	})

	if got := f.loop.connect(context.Background()); got != streamFailed {
		t.Errorf("connect = %v, want streamFailed", got)
	}
	if f.repo.callCount() != 0 {
		t.Error("watch opened despite selector error")
	}
}

func TestWatchLoopSelectorAppliedToWatch(t *testing.T) {
	f := newWatchLoopFixture(t, closedWatcher())
	f.loop.selector = StaticSelector("app=demo")

	f.runUntilConnects(t, 1)

	if got := f.repo.call(0).labelSelector; got != "app=demo" {
		t.Errorf("label selector = %q, want %q", got, "app=demo")
	}
}

func TestHandleEventResetsAttempts(t *testing.T) {
	f := newWatchLoopFixture(t)
	f.loop.attempts = 4

	f.loop.handleEvent(context.Background(), f.loop.log, WatchEvent{
		Type:   WatchEventAdded,
		Entity: &fakeEntity{uid: "u1", generation: 1},
	})

	if f.loop.attempts != 0 {
		t.Errorf("attempts = %d after successful event, want 0", f.loop.attempts)
	}
}

func TestClassifyStreamError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    streamOutcome
		wantRV  string
		startRV string
	}{
		{name: "nil", err: nil, want: streamEnded, startRV: "v1", wantRV: "v1"},
		{name: "resource expired drops cursor", err: apierrors.NewResourceExpired("expired"), want: streamEnded, startRV: "v1", wantRV: ""},
		{name: "gone drops cursor", err: apierrors.NewGone("gone"), want: streamEnded, startRV: "v1", wantRV: ""},
		{name: "gateway timeout keeps cursor", err: apierrors.NewTimeoutError("timeout", 1), want: streamEnded, startRV: "v1", wantRV: "v1"},
		{name: "eof is benign", err: io.EOF, want: streamEnded, startRV: "v1", wantRV: "v1"},
		{name: "unexpected eof is benign", err: io.ErrUnexpectedEOF, want: streamEnded, startRV: "v1", wantRV: "v1"},
		{name: "cancellation", err: context.Canceled, want: streamCanceled, startRV: "v1", wantRV: "v1"},
		{name: "other errors back off", err: apierrors.NewServiceUnavailable("try later"), want: streamFailed, startRV: "v1", wantRV: "v1"},
		{
			name:    "forbidden backs off",
			err:     apierrors.NewForbidden(schema.GroupResource{Resource: "widgets"}, "w", errors.New("rbac")),
			want:    streamFailed,
			startRV: "v1",
			wantRV:  "v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWatchLoopFixture(t)
			f.loop.resourceVersion = tt.startRV

			if got := f.loop.classifyStreamError(tt.err); got != tt.want {
				t.Errorf("classifyStreamError = %v, want %v", got, tt.want)
			}
			if f.loop.resourceVersion != tt.wantRV {
				t.Errorf("resource version = %q, want %q", f.loop.resourceVersion, tt.wantRV)
			}
		})
	}
}

func TestReconnectDelayBounds(t *testing.T) {
	for attempts := 0; attempts <= 8; attempts++ {
		exp := attempts
		if exp > 5 {
			exp = 5
		}
		low := time.Duration(1<<exp) * time.Second
		high := low + time.Second

		for range 20 {
			d := reconnectDelay(attempts)
			if d < low || d >= high {
				t.Fatalf("reconnectDelay(%d) = %v, want [%v, %v)", attempts, d, low, high)
			}
		}
	}
}
