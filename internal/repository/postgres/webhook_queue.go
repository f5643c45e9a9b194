package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
)

type webhookEventRepository struct {
	BaseRepository
}

func NewWebhookEventRepository(base BaseRepository) repository.WebhookEventRepository {
	return &webhookEventRepository{base}
}

func (r *webhookEventRepository) Create(ctx context.Context, event *model.WebhookEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO webhook_events (
			id, payload, status, searchable_text, created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`
	event.ID = uuid.New()
	event.Status = model.WebhookEventStatusPending
	event.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Payload,
		event.Status,
		event.SearchableText,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

func (r *webhookEventRepository) Get(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error) {
	query := `
		SELECT id, payload, status, error, searchable_text, created_at, processed_at
		FROM webhook_events
		WHERE id = $1
	`
	var event model.WebhookEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &event, nil
}

// GetPending returns up to limit PENDING events oldest-first. Fairness
// depends on the ascending order; the caller holds the cycle lock, so no
// row locking is needed here.
func (r *webhookEventRepository) GetPending(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	query := `
		SELECT id, payload, status, error, searchable_text, created_at, processed_at
		FROM webhook_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	var events []*model.WebhookEvent
	if err := r.db.SelectContext(ctx, &events, query, model.WebhookEventStatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	return events, nil
}

// MarkProcessing flags the whole claimed batch in one statement so a crash
// mid-cycle leaves the events visibly in flight instead of re-claimable.
func (r *webhookEventRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE webhook_events
		SET status = $1
		WHERE id = ANY($2)
	`
	_, err := r.db.ExecContext(ctx, query, model.WebhookEventStatusProcessing, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark events processing: %w", err)
	}
	return nil
}

// MarkOutcomes writes the final per-event status for a processed batch.
func (r *webhookEventRepository) MarkOutcomes(ctx context.Context, outcomes []model.EventOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	query := `
		UPDATE webhook_events
		SET status = $1, error = $2, processed_at = NOW()
		WHERE id = $3
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, o := range outcomes {
			if _, err := tx.ExecContext(ctx, query, o.Status, o.Error, o.ID); err != nil {
				return fmt.Errorf("failed to mark outcome for event %s: %w", o.ID, err)
			}
		}
		return nil
	})
}

// Requeue puts a settled event back on the queue for another pass. Events
// still PENDING or PROCESSING are left alone; reports whether the event
// was actually requeued.
func (r *webhookEventRepository) Requeue(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE webhook_events
		SET status = $1, error = NULL, processed_at = NULL
		WHERE id = $2 AND status IN ($3, $4)
	`
	result, err := r.db.ExecContext(ctx, query,
		model.WebhookEventStatusPending, id,
		model.WebhookEventStatusCompleted, model.WebhookEventStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue webhook event: %w", err)
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *webhookEventRepository) List(ctx context.Context, search string, limit, offset int) ([]*model.WebhookEvent, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []interface{}{}
	if search != "" {
		where = "WHERE searchable_text ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM webhook_events %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook events: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, payload, status, error, searchable_text, created_at, processed_at
		FROM webhook_events
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var events []*model.WebhookEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list webhook events: %w", err)
	}
	return events, total, nil
}
