package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	query := `
		INSERT INTO notifications (
			id, project_id, waba_id, message, link, event_type, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, false, $7)
	`
	notification.ID = uuid.New()
	notification.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		notification.ID,
		notification.ProjectID,
		notification.WABAID,
		notification.Message,
		notification.Link,
		notification.EventType,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
