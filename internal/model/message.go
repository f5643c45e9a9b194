package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusTimestamps maps a provider status string to the time it was
// observed, stored as JSONB. Re-applying the same status overwrites the
// same key, which keeps status application idempotent.
type StatusTimestamps map[string]time.Time

func (t StatusTimestamps) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	return json.Marshal(t)
}

func (t *StatusTimestamps) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for status timestamps: %T", src)
	}
}

// MessageRecord is the outbound message ledger row, keyed by the
// provider-assigned wamid. Terminal-state regression is not enforced here;
// the contact ledger carries the progression guard.
type MessageRecord struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	WAMID            string           `db:"wamid" json:"wamid"`
	Status           string           `db:"status" json:"status"`
	StatusTimestamps StatusTimestamps `db:"status_timestamps" json:"status_timestamps"`
	Error            *string          `db:"error" json:"error,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// MessageStatusUpdate is one ledger write derived from a StatusEvent.
type MessageStatusUpdate struct {
	WAMID     string
	Status    string
	Timestamp time.Time
	Error     *string
}
