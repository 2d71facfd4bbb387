package incidents

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"incidents-reseau/config"
	"incidents-reseau/core/store"
	"incidents-reseau/core/utils"
)

// CountAuditor periodically recomputes attachments_count from the attachment
// rows and repairs any drift. Attachments only enter at creation time, so
// drift means a bug or out-of-band writes; either way the aggregate wins.
type CountAuditor struct {
	cfg    config.AuditConfig
	store  store.IncidentsStore
	logger *utils.Logger

	cron    *cron.Cron
	runMu   sync.Mutex
	entryID cron.EntryID
}

func NewCountAuditor(cfg config.AuditConfig, st store.IncidentsStore, logger *utils.Logger) *CountAuditor {
	return &CountAuditor{cfg: cfg, store: st, logger: logger}
}

func (a *CountAuditor) Start(ctx context.Context) error {
	if a == nil || !a.cfg.Enabled {
		return nil
	}
	schedule := a.cfg.Schedule
	if schedule == "" {
		schedule = "@every 1h"
	}
	a.cron = cron.New()
	id, err := a.cron.AddFunc(schedule, func() {
		a.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	a.entryID = id
	a.cron.Start()
	a.logger.Printf("audit des compteurs planifié (%s)", schedule)
	return nil
}

// RunOnce performs one recount pass. Overlapping runs are serialized.
func (a *CountAuditor) RunOnce(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	drifts, err := a.store.RecountAttachments(ctx)
	if err != nil {
		a.logger.Errorf("audit des compteurs échoué: %v", err)
		return
	}
	for _, d := range drifts {
		a.logger.Warnf("incident %d: attachments_count corrigé %d -> %d", d.IncidentID, d.Stored, d.Actual)
	}
}

func (a *CountAuditor) Stop() {
	if a == nil || a.cron == nil {
		return
	}
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()
}
