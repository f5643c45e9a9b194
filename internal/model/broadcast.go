package model

import (
	"time"

	"github.com/google/uuid"
)

type BroadcastContactStatus string

const (
	BroadcastContactStatusPending    BroadcastContactStatus = "PENDING"
	BroadcastContactStatusQueued     BroadcastContactStatus = "QUEUED"
	BroadcastContactStatusProcessing BroadcastContactStatus = "PROCESSING"
	BroadcastContactStatusSent       BroadcastContactStatus = "SENT"
	BroadcastContactStatusDelivered  BroadcastContactStatus = "DELIVERED"
	BroadcastContactStatusRead       BroadcastContactStatus = "READ"
	BroadcastContactStatusFailed     BroadcastContactStatus = "FAILED"
)

// statusRank orders the delivery progression for the forward-only guard.
// Transitional states (QUEUED, PROCESSING) and FAILED have no rank: a
// receipt never moves a contact that is not in the ranked progression.
var statusRank = map[BroadcastContactStatus]int{
	BroadcastContactStatusPending:   0,
	BroadcastContactStatusSent:      1,
	BroadcastContactStatusDelivered: 2,
	BroadcastContactStatusRead:      3,
}

// Rank returns the progression rank of s and whether s participates in the
// ranked progression at all.
func (s BroadcastContactStatus) Rank() (int, bool) {
	r, ok := statusRank[s]
	return r, ok
}

// BroadcastContact is one recipient row of a broadcast campaign. Created
// when the campaign is composed; the fan-out handler is its only mutator
// once a message ID is attached.
type BroadcastContact struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	BroadcastID uuid.UUID              `db:"broadcast_id" json:"broadcast_id"`
	Phone       string                 `db:"phone" json:"phone"`
	MessageID   *string                `db:"message_id" json:"message_id,omitempty"` // wamid
	Status      BroadcastContactStatus `db:"status" json:"status"`
	Error       *string                `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	SentAt      *time.Time             `db:"sent_at" json:"sent_at,omitempty"`
}

// Broadcast holds the aggregate counters for one campaign. The counters
// only ever receive increments, except success_count which is decremented
// once when a previously SENT contact turns out to have failed.
type Broadcast struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ProjectID      uuid.UUID `db:"project_id" json:"project_id"`
	TemplateName   string    `db:"template_name" json:"template_name"`
	Status         string    `db:"status" json:"status"`
	ContactCount   int       `db:"contact_count" json:"contact_count"`
	DeliveredCount int       `db:"delivered_count" json:"delivered_count"`
	ReadCount      int       `db:"read_count" json:"read_count"`
	ErrorCount     int       `db:"error_count" json:"error_count"`
	SuccessCount   int       `db:"success_count" json:"success_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
}

// BroadcastCounterDelta accumulates per-broadcast counter changes for one
// fan-out pass before they are applied as a single increment each.
type BroadcastCounterDelta struct {
	Delivered int
	Read      int
	Failed    int
	Success   int
}

// IsZero reports whether the delta would be a no-op write.
func (d BroadcastCounterDelta) IsZero() bool {
	return d.Delivered == 0 && d.Read == 0 && d.Failed == 0 && d.Success == 0
}

// ContactStatusUpdate is one contact ledger write derived from a receipt.
type ContactStatusUpdate struct {
	ContactID uuid.UUID
	Status    BroadcastContactStatus
	Error     *string
}
