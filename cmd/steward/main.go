// Package main is the entry point for the steward binary. Its single
// subcommand, operator, runs the reconciliation runtime for the
// configured resource types.
//
// Dependencies are assembled via Google Wire; see wire.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stewardkit/steward/internal/cmd"
	"github.com/stewardkit/steward/internal/cmd/operator"
	"github.com/stewardkit/steward/internal/config"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Cobra is configured with SilenceErrors: true, so we
		// print the error here for consistent formatting.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires all dependencies and executes the root Cobra command.
func run(ctx context.Context) error {
	rootCmd, cleanup, err := wireCmd()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	return rootCmd.ExecuteContext(ctx)
}

// newCmd is a Wire provider that constructs the root Cobra command
// and registers the operator subcommand.
func newCmd(conf *config.Config, newOperator cmd.OperatorInjector) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:           "steward",
		Short:         "Steward: a reconciliation runtime for Kubernetes custom resources.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	operatorCmd, err := cmd.NewOperatorCommand(conf, newOperator)
	if err != nil {
		return nil, err
	}

	c.AddCommand(operatorCmd)

	return c, nil
}

// provideOperatorInjector adapts the Wire-generated operator injector
// to the CLI layer's constructor signature.
func provideOperatorInjector(conf *config.Config) cmd.OperatorInjector {
	return func() (*operator.Operator, func(), error) {
		return wireOperator(conf)
	}
}
