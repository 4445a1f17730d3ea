package kubernetes

import (
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/stewardkit/steward/internal/core"
)

// unstructuredEntity adapts an unstructured object to the runtime's
// Entity contract. It wraps the object without copying; SetFinalizers
// mutates the underlying map.
type unstructuredEntity struct {
	obj *unstructured.Unstructured
}

// NewEntity wraps obj as a core.Entity.
func NewEntity(obj *unstructured.Unstructured) core.Entity {
	return &unstructuredEntity{obj: obj}
}

var _ core.Entity = (*unstructuredEntity)(nil)

func (e *unstructuredEntity) UID() string {
	return string(e.obj.GetUID())
}

func (e *unstructuredEntity) Name() string {
	return e.obj.GetName()
}

func (e *unstructuredEntity) Namespace() string {
	return e.obj.GetNamespace()
}

func (e *unstructuredEntity) Kind() string {
	return e.obj.GetKind()
}

func (e *unstructuredEntity) APIVersion() string {
	return e.obj.GetAPIVersion()
}

func (e *unstructuredEntity) Generation() int64 {
	return e.obj.GetGeneration()
}

func (e *unstructuredEntity) ResourceVersion() string {
	return e.obj.GetResourceVersion()
}

func (e *unstructuredEntity) DeletionTimestamp() *time.Time {
	ts := e.obj.GetDeletionTimestamp()
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}

func (e *unstructuredEntity) Finalizers() []string {
	return e.obj.GetFinalizers()
}

func (e *unstructuredEntity) SetFinalizers(finalizers []string) {
	e.obj.SetFinalizers(finalizers)
}

// Unstructured returns the wrapped object for write-backs through the
// dynamic client.
func (e *unstructuredEntity) Unstructured() *unstructured.Unstructured {
	return e.obj
}
