package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/waba-sync/internal/model"
	"github.com/jwalitptl/waba-sync/internal/repository"
)

type chatRepository struct {
	BaseRepository
}

func NewChatRepository(base BaseRepository) repository.ChatRepository {
	return &chatRepository{base}
}

// UpsertContact creates or refreshes the conversation head for an inbound
// message, bumping the unread counter in the same atomic statement.
func (r *chatRepository) UpsertContact(ctx context.Context, contact *model.ChatContact) (*model.ChatContact, error) {
	query := `
		INSERT INTO chat_contacts (
			id, project_id, wa_id, name, phone_number_id,
			last_message, last_message_timestamp, unread_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
		ON CONFLICT (project_id, wa_id) DO UPDATE
		SET name = EXCLUDED.name,
			phone_number_id = EXCLUDED.phone_number_id,
			last_message = EXCLUDED.last_message,
			last_message_timestamp = EXCLUDED.last_message_timestamp,
			unread_count = chat_contacts.unread_count + 1
		RETURNING id, project_id, wa_id, name, phone_number_id,
			last_message, last_message_timestamp, unread_count, created_at
	`
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}

	var saved model.ChatContact
	err := r.db.GetContext(ctx, &saved, query,
		contact.ID,
		contact.ProjectID,
		contact.WaID,
		contact.Name,
		contact.PhoneNumberID,
		contact.LastMessage,
		contact.LastMessageTimestamp,
		time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert chat contact: %w", err)
	}
	return &saved, nil
}

func (r *chatRepository) CreateIncomingMessage(ctx context.Context, msg *model.IncomingMessage) error {
	query := `
		INSERT INTO incoming_messages (
			id, project_id, contact_id, wamid, type, content,
			message_timestamp, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, NOW())
	`
	msg.ID = uuid.New()
	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.ProjectID,
		msg.ContactID,
		msg.WAMID,
		msg.Type,
		msg.Content,
		msg.MessageTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create incoming message: %w", err)
	}
	return nil
}
