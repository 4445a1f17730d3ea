// Package cmd defines the Cobra subcommands and their Wire provider
// sets. It bridges configuration, dependency injection, and the
// operator runtime.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stewardkit/steward/internal/cmd/operator"
	"github.com/stewardkit/steward/internal/config"
)

// OperatorInjector defers operator construction to the Wire-generated
// injector so that the command can be built before any Kubernetes
// connection exists.
type OperatorInjector func() (*operator.Operator, func(), error)

// NewOperatorCommand returns the "operator" subcommand that runs the
// reconciliation runtime until the process receives a shutdown
// signal.
func NewOperatorCommand(conf *config.Config, newOperator OperatorInjector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     "operator",
		Short:   "Run the reconciliation runtime for the configured resources",
		Example: "steward operator --namespace=workloads --leader-election-enabled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, cleanup, err := newOperator()
			if err != nil {
				return fmt.Errorf("failed to initialize operator: %w", err)
			}
			defer cleanup()

			cfg := operator.Config{
				Namespace:      conf.OperatorNamespace(),
				Resources:      conf.OperatorResources(),
				OpsAddress:     conf.OperatorOpsAddress(),
				LeaderElection: conf.OperatorLeaderElection(),
			}

			return op.Run(cmd.Context(), cfg)
		},
	}

	if err := conf.BindFlags(cmd.Flags(), config.OperatorOptions); err != nil {
		return nil, err
	}

	return cmd, nil
}
