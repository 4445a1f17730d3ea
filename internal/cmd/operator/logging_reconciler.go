package operator

import (
	"context"
	"log/slog"

	"github.com/stewardkit/steward/internal/core"
)

// loggingReconciler is the reference reconciler bound to resources
// registered via configuration. It records what it observes and
// succeeds, making a fresh binary useful for watching reconciliation
// behaviour before real logic exists.
type loggingReconciler struct{}

var _ core.Reconciler = (*loggingReconciler)(nil)

func (r *loggingReconciler) Reconcile(_ context.Context, entity core.Entity) core.Result {
	slog.Info("observed spec change",
		"kind", entity.Kind(),
		"name", entity.Name(),
		"namespace", entity.Namespace(),
		"generation", entity.Generation())
	return core.Success()
}

func (r *loggingReconciler) Deleted(_ context.Context, entity core.Entity) core.Result {
	slog.Info("observed deletion",
		"kind", entity.Kind(),
		"name", entity.Name(),
		"namespace", entity.Namespace())
	return core.Success()
}
