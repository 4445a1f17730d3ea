package cmd

import (
	"github.com/google/wire"

	"github.com/stewardkit/steward/internal/cmd/operator"
)

// ProviderSet is the Wire provider set for the CLI layer.
var ProviderSet = wire.NewSet(
	operator.NewOperator,
	operator.NewHandler,
	operator.ProvideHostOptions,
	operator.ProvideGenerationCache,
	operator.ProvideMetrics,
	operator.ProvideLogger,
)
