// Package kubernetes adapts the runtime's client facade onto
// client-go: a dynamic client per watched resource, a typed clientset
// for runtime state (generation store, leases), and discovery for
// server-version gating.
package kubernetes

import (
	"fmt"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/stewardkit/steward/internal/config"
)

// watchListMinVersion is the first server version with streaming
// initial events enabled by default.
// https://kubernetes.io/docs/reference/using-api/api-concepts/#streaming-lists
var watchListMinVersion = semver.MustParse("v1.34.0")

// Kubernetes lazily resolves and caches the REST config the runtime
// needs; each client accessor builds a new client-go client from it.
// Construction is cheap; the first client call does the actual
// connection setup.
type Kubernetes struct {
	conf *config.Config

	mu         sync.Mutex
	restConfig *rest.Config
}

func New(conf *config.Config) *Kubernetes {
	return &Kubernetes{
		conf: conf,
	}
}

// RestConfig resolves the API server connection:
// in-cluster service account first, kubeconfig fallback for local
// development, with an optional debug override from configuration.
func (m *Kubernetes) RestConfig() (*rest.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.restConfig != nil {
		return m.restConfig, nil
	}

	if m.conf != nil && m.conf.OperatorDebugEnabled() && m.conf.OperatorDebugKubeAPIURL() != "" {
		m.restConfig = &rest.Config{Host: m.conf.OperatorDebugKubeAPIURL()}
		return m.restConfig, nil
	}

	if cfg, err := rest.InClusterConfig(); err == nil {
		m.restConfig = cfg
		return cfg, nil
	}

	// Fallback: use KUBECONFIG or default path.
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			kubeconfig = home + "/.kube/config"
		}
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kube config: %w", err)
	}
	m.restConfig = cfg
	return cfg, nil
}

// Dynamic returns a dynamic client for unstructured resource access.
func (m *Kubernetes) Dynamic() (*dynamic.DynamicClient, error) {
	cfg, err := m.RestConfig()
	if err != nil {
		return nil, err
	}
	return dynamic.NewForConfig(cfg)
}

// Clientset returns the typed clientset used for leases and the
// generation store ConfigMap.
func (m *Kubernetes) Clientset() (*kubernetes.Clientset, error) {
	cfg, err := m.RestConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}

// Discovery returns a discovery client for server-version checks.
func (m *Kubernetes) Discovery() (*discovery.DiscoveryClient, error) {
	cfg, err := m.RestConfig()
	if err != nil {
		return nil, err
	}
	return discovery.NewDiscoveryClientForConfig(cfg)
}

// supportsWatchList reports whether the server enables streaming
// initial events on watches. Errors degrade to false so the watch
// falls back to classic list-then-watch semantics.
func supportsWatchList(d discovery.DiscoveryInterface) bool {
	info, err := d.ServerVersion()
	if err != nil {
		return false
	}

	kubeVersion, err := semver.NewVersion(info.String())
	if err != nil {
		return false
	}

	return kubeVersion.GreaterThanEqual(watchListMinVersion)
}
