package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/config"
)

// startBackgroundJobs launches every periodic job. All of them stop when
// ctx is cancelled and are tracked by a.wg.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.cfg.CatalogPollInterval > 0 {
		if _, embedded := a.catalogSource.(catalog.EmbeddedSource); embedded {
			a.logger.Warn("Catalog polling ignored: embedded catalog never changes")
		} else {
			a.wg.Go(func() {
				a.catalogs.Poll(ctx, a.cfg.CatalogPollInterval)
			})
		}
	}

	a.wg.Go(func() { a.sweepConversations(ctx) })
	a.wg.Go(func() { a.updateGauges(ctx) })
	a.wg.Go(func() { a.runJournalRetention(ctx) })

	a.logger.Info("Background jobs started")
}

// sweepConversations drops expired pending captures.
func (a *Application) sweepConversations(ctx context.Context) {
	ticker := time.NewTicker(config.ConversationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.conversations.Sweep(); n > 0 {
				a.logger.WithField("expired", n).Debug("Expired conversations removed")
			}
			a.metrics.SetActiveConversations(a.conversations.Len())
		}
	}
}

func (a *Application) updateGauges(ctx context.Context) {
	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordGauges()
		}
	}
}

// recordGauges refreshes the gauges derived from in-memory state.
func (a *Application) recordGauges() {
	if cat := a.catalogs.Current(); cat != nil {
		a.metrics.SetCatalogSize(len(cat.Triggers()), len(cat.Responses()))
	}
	a.metrics.SetActiveConversations(a.conversations.Len())
}

// runJournalRetention prunes the delivery journal once at startup and then
// on the configured cron schedule.
func (a *Application) runJournalRetention(ctx context.Context) {
	a.pruneJournal(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(a.cfg.JournalCleanupSchedule, func() { a.pruneJournal(ctx) }); err != nil {
		// Validated at config load; reaching here means the config was built by hand.
		a.logger.WithError(err).Error("Invalid journal cleanup schedule; retention disabled")
		return
	}
	scheduler.Start()
	a.logger.WithField("schedule", a.cfg.JournalCleanupSchedule).
		WithField("retention", a.cfg.JournalRetention.String()).
		Info("Journal retention scheduled")

	<-ctx.Done()
	// Stop returns a context that is done once running jobs have finished.
	<-scheduler.Stop().Done()
}

func (a *Application) pruneJournal(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	deleted, err := a.db.DeleteOlderThan(ctx, a.cfg.JournalRetention)
	if err != nil {
		a.logger.WithError(err).Error("Journal cleanup failed")
		return
	}
	a.metrics.RecordJournalPruned(deleted)
	a.logger.WithField("deleted", deleted).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Journal cleanup complete")
}
