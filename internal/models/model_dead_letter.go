package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeadLetterEntry captures a webhook event whose tenant could not be resolved
// by any strategy. Retained permanently for manual remediation; it does not
// gate later processing of the same event id.
type DeadLetterEntry struct {
	ID          string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID     string         `gorm:"column:event_id;type:varchar(128);not null;index" json:"event_id"`
	EventType   string         `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	ErrorReason string         `gorm:"column:error_reason;type:text;not null" json:"error_reason"`
	RawPayload  datatypes.JSON `gorm:"column:raw_payload;type:jsonb" json:"raw_payload"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (DeadLetterEntry) TableName() string { return "billing_dead_letter" }
