package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentinel-rbac/sentinel/pkg/audit"
	"github.com/sentinel-rbac/sentinel/pkg/config"
	"github.com/sentinel-rbac/sentinel/pkg/observability"
)

// janitor runs scheduled maintenance: audit retention sweeps and
// database pool gauge updates.
type janitor struct {
	cron    *cron.Cron
	cfg     *config.Config
	db      *sql.DB
	audit   *audit.DBLogger
	metrics *observability.Metrics
	logger  *observability.Logger
}

func newJanitor(cfg *config.Config, db *sql.DB, auditLogger *audit.DBLogger, metrics *observability.Metrics, logger *observability.Logger) *janitor {
	return &janitor{
		cron:    cron.New(),
		cfg:     cfg,
		db:      db,
		audit:   auditLogger,
		metrics: metrics,
		logger:  logger,
	}
}

func (j *janitor) Start() {
	if j.audit != nil && j.cfg.Audit.Retention > 0 {
		_, err := j.cron.AddFunc(j.cfg.Audit.SweepSchedule, j.sweepAudit)
		if err != nil {
			j.logger.WithError(err).Error("failed to schedule audit sweep")
		}
	}

	if _, err := j.cron.AddFunc("@every 1m", j.updatePoolGauges); err != nil {
		j.logger.WithError(err).Error("failed to schedule pool gauge updates")
	}

	j.cron.Start()
}

func (j *janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *janitor) sweepAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := j.audit.PurgeOlderThan(ctx, j.cfg.Audit.Retention)
	if err != nil {
		j.logger.WithError(err).Error("audit retention sweep failed")
		return
	}
	j.logger.WithField("deleted", deleted).Info("audit retention sweep completed")
}

func (j *janitor) updatePoolGauges() {
	stats := j.db.Stats()
	j.metrics.DBConnectionsActive.Set(float64(stats.InUse))
	j.metrics.DBConnectionsIdle.Set(float64(stats.Idle))
}
