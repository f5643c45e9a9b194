package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

// ApplyStatusUpdates upserts one ledger row per receipt. The status
// timestamp map is merged by key, so the same status arriving twice lands
// on the same key with the same value. Updates are applied unordered: one
// failing row does not stop the rest.
func (r *messageRepository) ApplyStatusUpdates(ctx context.Context, updates []model.MessageStatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	query := `
		INSERT INTO message_records (
			id, wamid, status, status_timestamps, error, created_at, updated_at
		) VALUES (
			$1, $2, $3, jsonb_build_object($3::text, $4::timestamptz), $5, NOW(), NOW()
		)
		ON CONFLICT (wamid) DO UPDATE
		SET status = EXCLUDED.status,
			status_timestamps = message_records.status_timestamps || EXCLUDED.status_timestamps,
			error = COALESCE(EXCLUDED.error, message_records.error),
			updated_at = NOW()
	`

	var errs []error
	for _, u := range updates {
		_, err := r.db.ExecContext(ctx, query,
			uuid.New(),
			u.WAMID,
			u.Status,
			u.Timestamp,
			u.Error,
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to apply status for %s: %w", u.WAMID, err))
		}
	}
	return errors.Join(errs...)
}
