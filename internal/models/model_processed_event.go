package models

import "time"

// ProcessedEvent is the idempotency ledger. One row per successfully handled
// webhook delivery, keyed by the provider event id. Inserted before side
// effects inside the same transaction; a unique violation means another
// delivery of the same event already handled it.
type ProcessedEvent struct {
	ID          string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID     string    `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex" json:"event_id"`
	EventType   string    `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null" json:"processed_at"`
}

func (ProcessedEvent) TableName() string { return "processed_event" }
