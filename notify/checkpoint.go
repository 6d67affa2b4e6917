package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
)

// PostgresCheckpoints is the durable CheckpointStore backing a cross-process
// Listener, grounded on
// _examples/original_source/store/subscriptions.py's
// _load_checkpoint/_save_checkpoint against its subscription_checkpoints
// table (see migrations/ for the table's schema).
type PostgresCheckpoints struct {
	db *sqlx.DB
}

// NewPostgresCheckpoints wraps db as a CheckpointStore.
func NewPostgresCheckpoints(db *sqlx.DB) *PostgresCheckpoints {
	return &PostgresCheckpoints{db: db}
}

// LoadCheckpoint returns the subscriber's last saved position, or
// found=false if the subscriber has never checkpointed.
func (c *PostgresCheckpoints) LoadCheckpoint(ctx context.Context, subscriberID string) (time.Time, bool, error) {
	var lastTxTime time.Time
	err := c.db.GetContext(ctx, &lastTxTime,
		`SELECT last_tx_time FROM subscription_checkpoints WHERE subscriber_id = $1`, subscriberID)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, infraerrors.Wrap(infraerrors.ErrCodeInternal, "load checkpoint", 0, err)
	}
	return lastTxTime, true, nil
}

// SaveCheckpoint upserts the subscriber's position.
func (c *PostgresCheckpoints) SaveCheckpoint(ctx context.Context, subscriberID string, txTime time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO subscription_checkpoints (subscriber_id, last_tx_time)
		VALUES ($1, $2)
		ON CONFLICT (subscriber_id) DO UPDATE
			SET last_tx_time = EXCLUDED.last_tx_time,
			    updated_at = now()`,
		subscriberID, txTime)
	if err != nil {
		return infraerrors.Wrap(infraerrors.ErrCodeInternal, "save checkpoint", 0, err)
	}
	return nil
}
