package operator

import (
	"net/http"
	"sync/atomic"

	"connectrpc.com/grpchealth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler mounts the ops surface: Prometheus metrics, the gRPC health
// service, and plain liveness/readiness probes.
type Handler struct {
	registry *prometheus.Registry
	ready    atomic.Pointer[func() bool]
}

// NewHandler returns a handler exposing the given metrics registry.
// Readiness defaults to "not ready" until SetReady is called.
func NewHandler(registry *prometheus.Registry) *Handler {
	return &Handler{registry: registry}
}

// SetReady installs the readiness predicate (typically the host's
// Running method, or the elector's IsLeader under leader election).
func (h *Handler) SetReady(ready func() bool) {
	h.ready.Store(&ready)
}

// Mount registers all ops handlers onto the mux.
func (h *Handler) Mount(mux *http.ServeMux) error {
	// gRPC Health Check
	checker := grpchealth.NewStaticChecker()
	mux.Handle(grpchealth.NewHandler(checker))

	// Prometheus Metrics
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready := h.ready.Load(); ready != nil && (*ready)() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	return nil
}
