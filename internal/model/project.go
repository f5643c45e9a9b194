package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Throughput struct {
	Level string `json:"level,omitempty"`
}

// PhoneNumber is one channel number registered under a WABA.
type PhoneNumber struct {
	ID                     string      `json:"id"`
	DisplayPhoneNumber     string      `json:"display_phone_number"`
	VerifiedName           string      `json:"verified_name,omitempty"`
	CodeVerificationStatus string      `json:"code_verification_status,omitempty"`
	QualityRating          string      `json:"quality_rating,omitempty"`
	PlatformType           string      `json:"platform_type,omitempty"`
	Throughput             *Throughput `json:"throughput,omitempty"`
}

// PhoneNumbers is stored as a JSONB array on the projects table.
type PhoneNumbers []PhoneNumber

func (p PhoneNumbers) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

func (p *PhoneNumbers) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for phone numbers: %T", src)
	}
}

// Project is the internal tenant record for one WhatsApp Business Account.
// At most one project exists per WABA ID; creation goes through an atomic
// upsert keyed on that ID.
type Project struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	Name              string       `db:"name" json:"name"`
	WABAID            string       `db:"waba_id" json:"waba_id"`
	AccessToken       string       `db:"access_token" json:"-"`
	ReviewStatus      string       `db:"review_status" json:"review_status"`
	MessagesPerSecond int          `db:"messages_per_second" json:"messages_per_second"`
	PhoneNumbers      PhoneNumbers `db:"phone_numbers" json:"phone_numbers"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}
