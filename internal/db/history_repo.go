package db

import (
	"context"
	"time"

	"circlemap/internal/types"
)

// historySchema creates the append-only search log. id orders records by
// append time; created_at is informational.
const historySchema = `CREATE TABLE IF NOT EXISTS search_history (
	id         BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	user_name  TEXT NOT NULL DEFAULT '',
	address    TEXT NOT NULL DEFAULT '',
	lat        DOUBLE PRECISION NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	r1         DOUBLE PRECISION NOT NULL,
	r2         DOUBLE PRECISION NOT NULL,
	r3         DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS search_history_user_name_idx ON search_history (user_name, id DESC)`

// HistoryRepository stores HistoryRecords in the search_history table.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a HistoryRepository.
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// EnsureSchema creates the table and index if they do not exist.
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, historySchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalPersist, "failed to ensure history schema", err)
	}
	return nil
}

// Append inserts one record.
func (r *HistoryRepository) Append(ctx context.Context, rec types.HistoryRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO search_history (created_at, user_name, address, lat, lon, r1, r2, r3)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Timestamp, rec.Nickname, rec.Address, rec.Lat, rec.Lon, rec.R1, rec.R2, rec.R3,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalPersist, "failed to append history record", err)
	}
	return nil
}

// ReadAll returns every record in append order.
func (r *HistoryRepository) ReadAll(ctx context.Context) ([]types.HistoryRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT created_at, user_name, address, lat, lon, r1, r2, r3
		 FROM search_history
		 ORDER BY id ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalPersist, "failed to read history", err)
	}
	defer rows.Close()

	var out []types.HistoryRecord
	for rows.Next() {
		var rec types.HistoryRecord
		var createdAt time.Time
		if err := rows.Scan(&createdAt, &rec.Nickname, &rec.Address, &rec.Lat, &rec.Lon, &rec.R1, &rec.R2, &rec.R3); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalPersist, "failed to scan history record", err)
		}
		rec.Timestamp = createdAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalPersist, "failed to iterate history", err)
	}
	return out, nil
}

// LatestByNickname returns the most recently appended record for nickname.
// found is false when the nickname has no records.
func (r *HistoryRepository) LatestByNickname(ctx context.Context, nickname string) (rec types.HistoryRecord, found bool, err error) {
	rows, err := r.db.Query(ctx,
		`SELECT created_at, user_name, address, lat, lon, r1, r2, r3
		 FROM search_history
		 WHERE user_name = $1
		 ORDER BY id DESC
		 LIMIT 1`, nickname)
	if err != nil {
		return types.HistoryRecord{}, false, types.NewAppError(types.ErrCodeInternalPersist, "failed to query latest history", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return types.HistoryRecord{}, false, types.NewAppError(types.ErrCodeInternalPersist, "failed to query latest history", err)
		}
		return types.HistoryRecord{}, false, nil
	}
	var createdAt time.Time
	if err := rows.Scan(&createdAt, &rec.Nickname, &rec.Address, &rec.Lat, &rec.Lon, &rec.R1, &rec.R2, &rec.R3); err != nil {
		return types.HistoryRecord{}, false, types.NewAppError(types.ErrCodeInternalPersist, "failed to scan history record", err)
	}
	rec.Timestamp = createdAt.UTC()
	return rec, true, nil
}
