package leader

import (
	"github.com/google/wire"

	"github.com/stewardkit/steward/internal/config"
	"github.com/stewardkit/steward/internal/kubernetes"
)

// ElectorFactory defers elector construction until leader election is
// actually enabled; building eagerly would fail namespace/identity
// detection on local runs that never campaign.
type ElectorFactory func() (*Elector, error)

// ProvideElectorFactory builds the Lease elector from configuration
// on first use.
func ProvideElectorFactory(conf *config.Config, k8s *kubernetes.Kubernetes) ElectorFactory {
	return func() (*Elector, error) {
		clientset, err := k8s.Clientset()
		if err != nil {
			return nil, err
		}
		return NewElector(Config{LeaseName: conf.OperatorLeaseName()}, clientset)
	}
}

var ProviderSet = wire.NewSet(ProvideElectorFactory)
