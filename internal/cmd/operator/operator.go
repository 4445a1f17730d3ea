// Package operator assembles and runs the reconciliation runtime: the
// watch host, the optional leader gate, and the ops endpoint.
package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/stewardkit/steward/internal/core"
	"github.com/stewardkit/steward/internal/kubernetes"
	"github.com/stewardkit/steward/internal/leader"
)

// stopTimeout bounds the final host drain after the run context ends.
const stopTimeout = 30 * time.Second

// Config holds the runtime parameters for one operator run.
type Config struct {
	Namespace      string
	Resources      []string
	OpsAddress     string
	LeaderElection bool
}

// Operator runs the watch host under the configured gating policy and
// serves the ops endpoint alongside it.
type Operator struct {
	host       *core.Host
	kubernetes *kubernetes.Kubernetes
	newElector leader.ElectorFactory
	handler    *Handler
}

// NewOperator wires an operator from its collaborators.
func NewOperator(host *core.Host, k8s *kubernetes.Kubernetes, newElector leader.ElectorFactory, handler *Handler) *Operator {
	return &Operator{
		host:       host,
		kubernetes: k8s,
		newElector: newElector,
		handler:    handler,
	}
}

// Host exposes the watch host for callers that register reconcilers
// programmatically before Run.
func (o *Operator) Host() *core.Host {
	return o.host
}

// Run blocks until ctx is cancelled or a component fails. Resources
// named in cfg are registered with the reference logging reconciler;
// programmatic registrations made beforehand run as-is.
func (o *Operator) Run(ctx context.Context, cfg Config) error {
	if err := o.registerResources(cfg); err != nil {
		return err
	}

	o.handler.SetReady(o.host.Running)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return serveOps(egCtx, cfg.OpsAddress, o.handler)
	})

	eg.Go(func() error {
		if cfg.LeaderElection {
			elector, err := o.newElector()
			if err != nil {
				return fmt.Errorf("failed to build elector: %w", err)
			}
			gate := leader.NewGate(elector, o.host, nil)
			return gate.Run(egCtx)
		}

		if err := o.host.Start(egCtx); err != nil {
			return err
		}
		<-egCtx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return o.host.Stop(stopCtx)
	})

	err := eg.Wait()
	o.host.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerResources registers one watch per configured
// group/version/resource triple, each driven by the reference logging
// reconciler.
func (o *Operator) registerResources(cfg Config) error {
	for _, res := range cfg.Resources {
		gvr, err := parseGVR(res)
		if err != nil {
			return err
		}

		o.host.Register(core.Registration{
			Kind:          gvr.Resource,
			Namespace:     cfg.Namespace,
			Repo:          kubernetes.NewEntityRepo(o.kubernetes, gvr),
			NewReconciler: func() core.Reconciler { return &loggingReconciler{} },
		})
	}
	return nil
}

// parseGVR splits "group/version/resource"; the group may be empty
// for core resources ("/v1/configmaps").
func parseGVR(s string) (schema.GroupVersionResource, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return schema.GroupVersionResource{}, fmt.Errorf("invalid resource %q, expected group/version/resource", s)
	}
	return schema.GroupVersionResource{
		Group:    parts[0],
		Version:  parts[1],
		Resource: parts[2],
	}, nil
}
