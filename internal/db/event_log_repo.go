package db

import (
	"context"
	"time"

	"wayfarer/internal/types"
)

// ProcessedEventRepository tracks external event ids already applied, making
// webhook processing idempotent under provider retries. Inserts are atomic
// and fail harmlessly on duplicate key, so concurrent delivery of the same
// event id records exactly one row.
type ProcessedEventRepository struct {
	db DBTX
}

// NewProcessedEventRepository creates a new ProcessedEventRepository backed
// by the given database connection (pool or transaction).
func NewProcessedEventRepository(db DBTX) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

// IsProcessed reports whether the external event id has already been applied.
func (r *ProcessedEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check processed event", err)
	}
	return exists, nil
}

// MarkProcessed records the event id as applied. Returns false when the id
// was already recorded (a concurrent delivery won the insert race).
func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, eventID string, appliedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO processed_events (event_id, applied_at)
		 VALUES ($1, $2)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, appliedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark event processed", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PruneOlderThan deletes log entries applied before the cutoff. The provider
// does not redeliver events older than its retry horizon, so retention past
// that point only grows the table.
func (r *ProcessedEventRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM processed_events WHERE applied_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune processed events", err)
	}
	return tag.RowsAffected(), nil
}
