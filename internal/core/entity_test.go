package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeEntity implements Entity for testing.
type fakeEntity struct {
	uid               string
	name              string
	namespace         string
	kind              string
	apiVersion        string
	generation        int64
	resourceVersion   string
	deletionTimestamp *time.Time
	finalizers        []string
}

func (e *fakeEntity) UID() string                   { return e.uid }
func (e *fakeEntity) Name() string                  { return e.name }
func (e *fakeEntity) Namespace() string             { return e.namespace }
func (e *fakeEntity) Kind() string                  { return e.kind }
func (e *fakeEntity) APIVersion() string            { return e.apiVersion }
func (e *fakeEntity) Generation() int64             { return e.generation }
func (e *fakeEntity) ResourceVersion() string       { return e.resourceVersion }
func (e *fakeEntity) DeletionTimestamp() *time.Time { return e.deletionTimestamp }
func (e *fakeEntity) Finalizers() []string          { return e.finalizers }
func (e *fakeEntity) SetFinalizers(f []string)      { e.finalizers = f }

// mockReconciler implements Reconciler with scripted results and call
// counting.
type mockReconciler struct {
	mu            sync.Mutex
	reconcileRes  Result
	deletedRes    Result
	reconcileCnt  int
	deletedCnt    int
	lastReconcile Entity
}

func (m *mockReconciler) Reconcile(_ context.Context, entity Entity) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcileCnt++
	m.lastReconcile = entity
	return m.reconcileRes
}

func (m *mockReconciler) Deleted(_ context.Context, _ Entity) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedCnt++
	return m.deletedRes
}

func (m *mockReconciler) reconcileCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcileCnt
}

func (m *mockReconciler) deletedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletedCnt
}

// mockFinalizer implements Finalizer with a scripted result.
type mockFinalizer struct {
	mu    sync.Mutex
	res   Result
	calls int
}

func (m *mockFinalizer) Finalize(_ context.Context, _ Entity) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.res
}

func (m *mockFinalizer) finalizeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockRepo implements EntityRepo for testing. Watch always fails;
// Update records the entities written through.
type mockRepo struct {
	mu        sync.Mutex
	updates   []Entity
	updateErr error
}

func (m *mockRepo) Watch(_ context.Context, _, _, _ string, _ bool) (EntityWatcher, error) {
	return nil, &ErrNotReady{Subsystem: "mock watch"}
}

func (m *mockRepo) Update(_ context.Context, entity Entity) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updates = append(m.updates, entity)
	return entity, nil
}

func (m *mockRepo) Get(_ context.Context, _, _ string) (Entity, error) {
	return nil, nil
}

func (m *mockRepo) updateCalls() []Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entity(nil), m.updates...)
}

func TestResultHelpers(t *testing.T) {
	if Success().Failed() {
		t.Error("Success should not be failed")
	}
	if !Failure(&ErrQueueClosed{}).Failed() {
		t.Error("Failure should be failed")
	}

	res := SuccessAfter(time.Second)
	if res.Failed() || res.RequeueAfter != time.Second {
		t.Errorf("SuccessAfter: unexpected %+v", res)
	}

	res = FailureAfter(&ErrQueueClosed{}, time.Minute)
	if !res.Failed() || res.RequeueAfter != time.Minute {
		t.Errorf("FailureAfter: unexpected %+v", res)
	}
}
