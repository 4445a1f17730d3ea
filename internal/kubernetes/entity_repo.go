package kubernetes

import (
	"context"
	"fmt"
	"sync"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/stewardkit/steward/internal/core"
)

// entityRepo implements the runtime's client facade for one resource
// type through the dynamic client.
type entityRepo struct {
	kubernetes *Kubernetes
	gvr        schema.GroupVersionResource

	watchListOnce sync.Once
	watchList     bool
}

// NewEntityRepo binds the client facade to one GroupVersionResource.
func NewEntityRepo(kubernetes *Kubernetes, gvr schema.GroupVersionResource) core.EntityRepo {
	return &entityRepo{
		kubernetes: kubernetes,
		gvr:        gvr,
	}
}

var _ core.EntityRepo = (*entityRepo)(nil)

func (r *entityRepo) Watch(ctx context.Context, namespace, resourceVersion, labelSelector string, allowBookmarks bool) (core.EntityWatcher, error) {
	client, err := r.kubernetes.Dynamic()
	if err != nil {
		return nil, err
	}

	opts := metav1.ListOptions{
		LabelSelector:       labelSelector,
		Watch:               true,
		AllowWatchBookmarks: allowBookmarks,
		ResourceVersion:     resourceVersion,
	}

	// An empty resource version asks for re-list semantics. On new
	// enough servers the initial state streams over the watch
	// itself instead of requiring a separate list.
	if resourceVersion == "" && r.supportsWatchList() {
		sendInitialEvents := true
		opts.ResourceVersionMatch = metav1.ResourceVersionMatchNotOlderThan
		opts.SendInitialEvents = &sendInitialEvents
	}

	inner, err := client.Resource(r.gvr).Namespace(namespace).Watch(ctx, opts)
	if err != nil {
		return nil, err
	}

	return newEntityWatcher(inner), nil
}

func (r *entityRepo) Update(ctx context.Context, entity core.Entity) (core.Entity, error) {
	obj, err := toUnstructured(entity)
	if err != nil {
		return nil, err
	}

	client, err := r.kubernetes.Dynamic()
	if err != nil {
		return nil, err
	}

	updated, err := client.Resource(r.gvr).Namespace(entity.Namespace()).Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return nil, err
	}
	return NewEntity(updated), nil
}

func (r *entityRepo) Get(ctx context.Context, name, namespace string) (core.Entity, error) {
	client, err := r.kubernetes.Dynamic()
	if err != nil {
		return nil, err
	}

	obj, err := client.Resource(r.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewEntity(obj), nil
}

func (r *entityRepo) supportsWatchList() bool {
	r.watchListOnce.Do(func() {
		discovery, err := r.kubernetes.Discovery()
		if err != nil {
			return
		}
		r.watchList = supportsWatchList(discovery)
	})
	return r.watchList
}

// toUnstructured recovers the wrapped object from an entity produced
// by this package.
func toUnstructured(entity core.Entity) (*unstructured.Unstructured, error) {
	wrapped, ok := entity.(interface {
		Unstructured() *unstructured.Unstructured
	})
	if !ok {
		return nil, fmt.Errorf("entity %s/%s does not wrap an unstructured object", entity.Namespace(), entity.Name())
	}
	return wrapped.Unstructured(), nil
}

// entityWatcher translates client-go watch events into the domain
// WatchEvent stream.
type entityWatcher struct {
	inner watch.Interface
	out   chan core.WatchEvent
}

func newEntityWatcher(inner watch.Interface) *entityWatcher {
	w := &entityWatcher{
		inner: inner,
		out:   make(chan core.WatchEvent),
	}
	go w.translate()
	return w
}

var _ core.EntityWatcher = (*entityWatcher)(nil)

func (w *entityWatcher) ResultChan() <-chan core.WatchEvent {
	return w.out
}

func (w *entityWatcher) Stop() {
	w.inner.Stop()
}

func (w *entityWatcher) translate() {
	defer close(w.out)

	for event := range w.inner.ResultChan() {
		switch event.Type {
		case watch.Added, watch.Modified, watch.Deleted, watch.Bookmark:
			obj, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				w.out <- core.WatchEvent{
					Type: core.WatchEventError,
					Err:  fmt.Errorf("unexpected watch object type %T", event.Object),
				}
				continue
			}
			w.out <- core.WatchEvent{
				Type:   core.WatchEventType(event.Type),
				Entity: NewEntity(obj),
			}

		case watch.Error:
			w.out <- core.WatchEvent{
				Type: core.WatchEventError,
				Err:  apierrors.FromObject(event.Object),
			}
		}
	}
}
