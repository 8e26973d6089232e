// Package history writes an audit row for every finished transformation flow.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"avatar-transformer/internal/common/errors"
	"avatar-transformer/internal/common/logger"
	"avatar-transformer/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS transformation_history (
	flow_id           TEXT PRIMARY KEY,
	handle            TEXT NOT NULL,
	client_ip         TEXT NOT NULL,
	status            TEXT NOT NULL,
	profile_image     TEXT,
	transformed_image TEXT,
	error_code        TEXT,
	error_message     TEXT,
	duration_ms       BIGINT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
)`

const insertRecord = `
INSERT INTO transformation_history
	(flow_id, handle, client_ip, status, profile_image, transformed_image, error_code, error_message, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

type Recorder struct {
	db     *sql.DB
	logger logger.Logger
}

func NewRecorder(db *sql.DB, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Recorder{db: db, logger: log.WithFields(map[string]interface{}{"component": "history"})}
}

// EnsureSchema creates the history table if it is missing.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create transformation_history: %w", err)
	}
	return nil
}

// Record inserts one row. Empty optional columns are stored as NULL.
func (r *Recorder) Record(ctx context.Context, rec models.TransformationRecord) error {
	_, err := r.db.ExecContext(ctx, insertRecord,
		rec.FlowID,
		rec.Handle,
		rec.ClientIP,
		rec.Status,
		nullable(rec.ProfileImage),
		nullable(rec.TransformedImage),
		nullable(rec.ErrorCode),
		nullable(rec.ErrorMessage),
		rec.DurationMs,
		rec.CreatedAt,
	)
	if err != nil {
		return errors.NewHistoryWriteError(err)
	}

	r.logger.Debug("transformation recorded", map[string]interface{}{
		"flowId": rec.FlowID,
		"status": rec.Status,
	})
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
