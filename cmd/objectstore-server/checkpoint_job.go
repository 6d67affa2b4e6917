package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/r3e-network/objectstore/infrastructure/metrics"
)

// checkpointLagJob periodically reports how far each durable subscriber's
// checkpoint trails the present moment, exposed on /metrics as
// the objectstore_subscriber_checkpoint_lag_seconds gauge. Grounded on the
// teacher's internal/marble/worker.go ticker-driven background-worker
// idiom, here scheduled by robfig/cron instead of a raw time.Ticker since
// a cron expression (rather than a bare interval) is already the
// convention every other periodic job in this process would use.
type checkpointLagJob struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
	service string
}

func newCheckpointLagJob(db *sqlx.DB, m *metrics.Metrics, service string) *checkpointLagJob {
	return &checkpointLagJob{db: db, metrics: m, service: service}
}

func (j *checkpointLagJob) run() {
	if j.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := j.db.QueryContext(ctx, `SELECT subscriber_id, last_tx_time FROM subscription_checkpoints`)
	if err != nil {
		return
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var subscriberID string
		var lastTxTime time.Time
		if err := rows.Scan(&subscriberID, &lastTxTime); err != nil {
			continue
		}
		j.metrics.SetSubscriberCheckpointLag(j.service, subscriberID, now.Sub(lastTxTime))
	}
}
