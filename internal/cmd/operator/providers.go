package operator

import (
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/stewardkit/steward/internal/config"
	"github.com/stewardkit/steward/internal/core"
	"github.com/stewardkit/steward/internal/kubernetes"
	"github.com/stewardkit/steward/internal/metrics"
	cachestore "github.com/stewardkit/steward/internal/providers/cache"
)

// ProvideHostOptions maps configuration onto the host's startup
// options.
func ProvideHostOptions(conf *config.Config) core.HostOptions {
	return core.HostOptions{
		Namespace: conf.OperatorNamespace(),
		FinalizerPolicy: core.FinalizerPolicy{
			AutoAttach: conf.OperatorAutoAttachFinalizers(),
			AutoDetach: conf.OperatorAutoDetachFinalizers(),
		},
	}
}

// ProvideGenerationCache selects the cache backend: the plain
// in-memory cache by default, or the layered cache over the ConfigMap
// store when configured. The layered form keeps observed generations
// across restarts and shares them between replicas.
func ProvideGenerationCache(conf *config.Config, k8s *kubernetes.Kubernetes) (core.GenerationCache, error) {
	if !conf.OperatorCacheConfigMapEnabled() {
		return core.NewMemoryGenerationCache(), nil
	}

	clientset, err := k8s.Clientset()
	if err != nil {
		return nil, err
	}

	namespace := conf.OperatorNamespace()
	if namespace == "" {
		namespace = storeNamespace()
	}

	store := cachestore.NewConfigMapStore(
		clientset.CoreV1().ConfigMaps(namespace),
		namespace,
		conf.OperatorCacheConfigMapName(),
	)
	return core.NewLayeredGenerationCache(store, conf.OperatorCacheKeyPrefix()), nil
}

// ProvideMetrics creates the runtime instruments with the requeue
// queue wired as the depth gauge source.
func ProvideMetrics(provider metric.MeterProvider, queue *core.RequeueQueue) (*metrics.Metrics, error) {
	return metrics.New(provider, func() int64 {
		return int64(queue.Len())
	})
}

// ProvideLogger returns the process logger the runtime components
// share.
func ProvideLogger() *slog.Logger {
	return slog.Default()
}

// storeNamespace resolves where the generation store ConfigMap lives
// when no watch namespace is configured: the operator's own
// namespace, falling back to "default" outside a cluster.
func storeNamespace() string {
	if ns := strings.TrimSpace(os.Getenv("POD_NAMESPACE")); ns != "" {
		return ns
	}
	if b, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		if ns := strings.TrimSpace(string(b)); ns != "" {
			return ns
		}
	}
	return "default"
}
