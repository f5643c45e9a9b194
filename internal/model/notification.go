package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an append-only record surfaced on the dashboard feed.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	WABAID    string    `db:"waba_id" json:"waba_id"`
	Message   string    `db:"message" json:"message"`
	Link      string    `db:"link" json:"link"`
	EventType string    `db:"event_type" json:"event_type"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
