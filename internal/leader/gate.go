package leader

import (
	"context"
	"log/slog"
	"time"
)

// stopTimeout bounds how long the gate waits for the watchers to
// drain after leadership is lost.
const stopTimeout = 30 * time.Second

// Campaigner is the elector contract the gate consumes. *Elector
// satisfies it; tests substitute a scripted implementation.
type Campaigner interface {
	Run(ctx context.Context, onStartedLeading func(context.Context), onStoppedLeading func()) error
	IsLeader() bool
}

// Runner is the start/stop contract of the watch host.
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Gate arms the watch host while this replica holds the lease and
// tears it down on leadership loss. The host's generation cache and
// requeue queue survive transitions; the watch loops do not.
type Gate struct {
	elector Campaigner
	runner  Runner
	log     *slog.Logger
}

// NewGate returns a gate driving runner from elector transitions.
func NewGate(elector Campaigner, runner Runner, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		elector: elector,
		runner:  runner,
		log:     log,
	}
}

// Run campaigns for leadership until ctx is done. On acquisition the
// watchers start under the lease-scoped context (which the elector
// cancels on loss); on loss the gate additionally stops the host and
// awaits shutdown before the next campaign.
func (g *Gate) Run(ctx context.Context) error {
	err := g.elector.Run(ctx,
		func(leadCtx context.Context) {
			g.log.Info("leadership acquired, starting watchers")
			if startErr := g.runner.Start(leadCtx); startErr != nil {
				g.log.Error("failed to start watchers", "error", startErr)
			}
		},
		func() {
			g.log.Info("leadership lost, stopping watchers")
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if stopErr := g.runner.Stop(stopCtx); stopErr != nil {
				g.log.Error("failed to stop watchers cleanly", "error", stopErr)
			}
		},
	)

	// Cover shutdown while still leading: the elector releases the
	// lease on cancel, but the host may not have been stopped yet.
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if stopErr := g.runner.Stop(stopCtx); stopErr != nil {
		g.log.Error("failed to stop watchers on shutdown", "error", stopErr)
	}

	return err
}
