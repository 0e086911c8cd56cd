package applications

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dot-do/entitykernel/domain/kernel"
	"github.com/dot-do/entitykernel/pkg/logger"
)

// retentionSweeper periodically purges dispatch_log entries older than a
// configured retention window from every tenant the Manager has already
// constructed. The schedule is fixed ("@every 1h") since retention sweeping
// has no per-tenant trigger definition, only a single retention duration
// from configuration.
//
// Entities and events are append-only per the engine's invariants; only the
// operational dispatch log is ever pruned.
type retentionSweeper struct {
	manager   *kernel.Manager
	retention time.Duration
	log       *logger.Logger
	cron      *cron.Cron
}

func newRetentionSweeper(manager *kernel.Manager, retention time.Duration, log *logger.Logger) *retentionSweeper {
	return &retentionSweeper{
		manager:   manager,
		retention: retention,
		log:       log,
		cron:      cron.New(),
	}
}

// Start schedules the sweep to run hourly and runs one pass immediately in
// the background so a short-lived process still gets a chance to reclaim
// space before its first scheduled tick.
func (r *retentionSweeper) Start() {
	_, err := r.cron.AddFunc("@every 1h", r.sweep)
	if err != nil {
		r.log.WithError(err).Error("retention sweeper: invalid schedule")
		return
	}
	r.cron.Start()
	go r.sweep()
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (r *retentionSweeper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *retentionSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-r.retention)
	for _, t := range r.manager.Tenants() {
		removed, err := t.Engine.PurgeDispatchLog(ctx, cutoff)
		if err != nil {
			r.log.WithError(err).WithField("tenant", t.ID).Warn("dispatch log retention sweep failed")
			continue
		}
		if removed > 0 {
			r.log.WithField("tenant", t.ID).WithField("removed", removed).Info("dispatch log retention sweep removed entries")
		}
	}
}
