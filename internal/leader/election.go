// Package leader gates the operator's watch loops behind Kubernetes
// Lease-based leader election so that at most one replica processes
// events at a time.
package leader

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

const (
	defaultLeaseDuration = 15 * time.Second
	defaultRenewDeadline = 10 * time.Second
	defaultRetryPeriod   = 2 * time.Second
)

// Elector runs Kubernetes Lease leader election and keeps
// re-acquiring after leadership loss until its context is cancelled.
type Elector struct {
	namespace string
	leaseName string
	identity  string

	leaseDuration time.Duration
	renewDeadline time.Duration
	retryPeriod   time.Duration

	isLeader atomic.Bool

	clientset kubernetes.Interface
}

// Config holds Elector construction parameters.
type Config struct {
	// Namespace where the Lease object lives. If empty, it will be detected.
	Namespace string
	// LeaseName is the name of the Lease object.
	LeaseName string
	// Identity is the unique identity for this participant. If empty, it will be detected.
	Identity string

	// LeaseDuration is the duration that non-leader candidates will wait to force acquire leadership.
	LeaseDuration time.Duration
	// RenewDeadline is the duration that the acting leader will retry refreshing leadership before giving up.
	RenewDeadline time.Duration
	// RetryPeriod is the duration the LeaderElector clients should wait between tries.
	RetryPeriod time.Duration
}

// NewElector builds an elector over the given clientset.
func NewElector(cfg Config, clientset kubernetes.Interface) (*Elector, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = detectNamespace()
	}
	if ns == "" {
		return nil, fmt.Errorf("unable to detect namespace; set POD_NAMESPACE or mount serviceaccount namespace")
	}

	leaseName := cfg.LeaseName
	if leaseName == "" {
		leaseName = "steward-operator-leader"
	}

	identity := cfg.Identity
	if identity == "" {
		identity = detectIdentity()
	}
	if identity == "" {
		return nil, fmt.Errorf("unable to detect identity; set POD_NAME or hostname")
	}

	e := &Elector{
		namespace:     ns,
		leaseName:     leaseName,
		identity:      identity,
		leaseDuration: cfg.LeaseDuration,
		renewDeadline: cfg.RenewDeadline,
		retryPeriod:   cfg.RetryPeriod,
		clientset:     clientset,
	}
	if e.leaseDuration <= 0 {
		e.leaseDuration = defaultLeaseDuration
	}
	if e.renewDeadline <= 0 {
		e.renewDeadline = defaultRenewDeadline
	}
	if e.retryPeriod <= 0 {
		e.retryPeriod = defaultRetryPeriod
	}
	return e, nil
}

func (e *Elector) IsLeader() bool {
	return e.isLeader.Load()
}

func (e *Elector) Identity() string {
	return e.identity
}

// Run blocks until ctx is done, calling the callbacks on every
// leadership transition. client-go's LeaderElector exits after a
// single acquire/lose cycle, so Run wraps it in a loop: after losing
// the lease the elector goes back to campaigning. The returned error
// is only for setup/lock creation failures.
func (e *Elector) Run(ctx context.Context, onStartedLeading func(context.Context), onStoppedLeading func()) error {
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      e.leaseName,
			Namespace: e.namespace,
		},
		Client: e.clientset.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: e.identity,
		},
	}

	lec := leaderelection.LeaderElectionConfig{
		Lock:          lock,
		LeaseDuration: e.leaseDuration,
		RenewDeadline: e.renewDeadline,
		RetryPeriod:   e.retryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(c context.Context) {
				e.isLeader.Store(true)
				onStartedLeading(c)
			},
			OnStoppedLeading: func() {
				e.isLeader.Store(false)
				onStoppedLeading()
			},
		},
		ReleaseOnCancel: true,
		Name:            "steward",
	}

	for {
		le, err := leaderelection.NewLeaderElector(lec)
		if err != nil {
			return err
		}

		le.Run(ctx) // blocks until leadership is lost or ctx is done

		if ctx.Err() != nil {
			return nil
		}
	}
}

func detectNamespace() string {
	if ns := strings.TrimSpace(os.Getenv("POD_NAMESPACE")); ns != "" {
		return ns
	}
	// Standard location in Kubernetes pods
	if b, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(b))
	}
	return ""
}

func detectIdentity() string {
	if n := strings.TrimSpace(os.Getenv("POD_NAME")); n != "" {
		return n
	}
	if h, err := os.Hostname(); err == nil && strings.TrimSpace(h) != "" {
		return strings.TrimSpace(h) + "-" + shortRandom()
	}
	return shortRandom()
}

func shortRandom() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf) // best-effort
	return base64.RawStdEncoding.EncodeToString(buf)
}
