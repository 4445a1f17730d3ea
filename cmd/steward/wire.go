//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/stewardkit/steward/internal/cmd"
	"github.com/stewardkit/steward/internal/cmd/operator"
	"github.com/stewardkit/steward/internal/config"
	"github.com/stewardkit/steward/internal/core"
	"github.com/stewardkit/steward/internal/kubernetes"
	"github.com/stewardkit/steward/internal/leader"
	"github.com/stewardkit/steward/internal/metrics"
)

func wireCmd() (*cobra.Command, func(), error) {
	panic(wire.Build(
		newCmd,
		provideOperatorInjector,
		config.ProviderSet,
	))
}

func wireOperator(conf *config.Config) (*operator.Operator, func(), error) {
	panic(wire.Build(
		cmd.ProviderSet,
		core.ProviderSet,
		kubernetes.ProviderSet,
		leader.ProviderSet,
		metrics.NewRegistry,
		metrics.NewMeterProvider,
		wire.Bind(new(metric.MeterProvider), new(*sdkmetric.MeterProvider)),
	))
}
