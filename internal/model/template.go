package model

import (
	"time"

	"github.com/google/uuid"
)

// Template mirrors a provider-approval-gated message template. Status and
// quality score are owned by the provider and updated only from webhook
// events; template events carry no account reference, so the owning
// project is resolved through project_id here.
type Template struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ProjectID    uuid.UUID `db:"project_id" json:"project_id"`
	MetaID       string    `db:"meta_id" json:"meta_id"`
	Name         string    `db:"name" json:"name"`
	Status       string    `db:"status" json:"status"`
	QualityScore string    `db:"quality_score" json:"quality_score"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
