package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChatContact is the denormalized conversation head for one end user,
// keyed by (project_id, wa_id). Upserted on every inbound message with an
// unread counter increment.
type ChatContact struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	ProjectID            uuid.UUID `db:"project_id" json:"project_id"`
	WaID                 string    `db:"wa_id" json:"wa_id"`
	Name                 string    `db:"name" json:"name"`
	PhoneNumberID        string    `db:"phone_number_id" json:"phone_number_id"`
	LastMessage          string    `db:"last_message" json:"last_message"`
	LastMessageTimestamp time.Time `db:"last_message_timestamp" json:"last_message_timestamp"`
	UnreadCount          int       `db:"unread_count" json:"unread_count"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// IncomingMessage is one stored inbound message.
type IncomingMessage struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	ProjectID        uuid.UUID       `db:"project_id" json:"project_id"`
	ContactID        uuid.UUID       `db:"contact_id" json:"contact_id"`
	WAMID            string          `db:"wamid" json:"wamid"`
	Type             string          `db:"type" json:"type"`
	Content          json.RawMessage `db:"content" json:"content"`
	MessageTimestamp time.Time       `db:"message_timestamp" json:"message_timestamp"`
	IsRead           bool            `db:"is_read" json:"is_read"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
