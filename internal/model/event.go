package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "PENDING"
	WebhookEventStatusProcessing WebhookEventStatus = "PROCESSING"
	WebhookEventStatusCompleted  WebhookEventStatus = "COMPLETED"
	WebhookEventStatusFailed     WebhookEventStatus = "FAILED"
)

// WebhookEvent is one raw provider payload queued for reconciliation.
// Rows are appended by the ingress handler and mutated only by the drain
// cycle; cleanup is an external concern.
type WebhookEvent struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	Payload        json.RawMessage    `db:"payload" json:"payload"`
	Status         WebhookEventStatus `db:"status" json:"status"`
	Error          *string            `db:"error" json:"error,omitempty"`
	SearchableText string             `db:"searchable_text" json:"-"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	ProcessedAt    *time.Time         `db:"processed_at" json:"processed_at,omitempty"`
}

// EventOutcome is the final per-event result written back after a cycle.
type EventOutcome struct {
	ID     uuid.UUID
	Status WebhookEventStatus
	Error  *string
}
