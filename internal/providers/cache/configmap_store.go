// Package cache provides the external key-value store backing the
// layered generation cache. The store persists entries in a ConfigMap
// so the cached generations survive operator restarts and are shared
// between replicas.
package cache

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	corev1client "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/util/retry"

	"github.com/stewardkit/steward/internal/core"
)

// ConfigMapStore implements core.KeyValueStore on a single ConfigMap.
// Writes go through get-mutate-update with conflict retry, so
// concurrent replicas converge without a separate lock.
type ConfigMapStore struct {
	client    corev1client.ConfigMapInterface
	namespace string
	name      string
}

// NewConfigMapStore returns a store over the named ConfigMap. The
// ConfigMap is created on first write.
func NewConfigMapStore(client corev1client.ConfigMapInterface, namespace, name string) *ConfigMapStore {
	return &ConfigMapStore{
		client:    client,
		namespace: namespace,
		name:      name,
	}
}

var _ core.KeyValueStore = (*ConfigMapStore)(nil)

func (s *ConfigMapStore) Get(ctx context.Context, key string) (string, bool, error) {
	cm, err := s.client.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read generation store: %w", err)
	}

	value, ok := cm.Data[sanitizeKey(key)]
	return value, ok, nil
}

func (s *ConfigMapStore) Set(ctx context.Context, key, value string) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := s.client.Get(ctx, s.name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			cm = &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{
					Name:      s.name,
					Namespace: s.namespace,
				},
				Data: map[string]string{sanitizeKey(key): value},
			}
			_, err = s.client.Create(ctx, cm, metav1.CreateOptions{})
			if apierrors.IsAlreadyExists(err) {
				// Another replica created it first; retry the
				// update path.
				return apierrors.NewConflict(corev1.Resource("configmaps"), s.name, err)
			}
			return err
		}
		if err != nil {
			return err
		}

		if cm.Data == nil {
			cm.Data = make(map[string]string)
		}
		cm.Data[sanitizeKey(key)] = value

		_, err = s.client.Update(ctx, cm, metav1.UpdateOptions{})
		return err
	})
}

func (s *ConfigMapStore) Delete(ctx context.Context, key string) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := s.client.Get(ctx, s.name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, ok := cm.Data[sanitizeKey(key)]; !ok {
			return nil
		}
		delete(cm.Data, sanitizeKey(key))

		_, err = s.client.Update(ctx, cm, metav1.UpdateOptions{})
		return err
	})
}

// sanitizeKey maps arbitrary cache keys onto the character set
// ConfigMap data keys allow.
func sanitizeKey(key string) string {
	out := []byte(key)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
