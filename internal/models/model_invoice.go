package models

import "time"

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Invoice is owned by the main application. This service only flips an invoice
// to paid on a payment-completion event, guarded by the current status so a
// redelivered event cannot fire duplicate notifications.
type Invoice struct {
	ID          string        `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TenantID    string        `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`
	ClientEmail string        `gorm:"column:client_email;type:varchar(255)" json:"client_email"`
	Number      string        `gorm:"column:number;type:varchar(64)" json:"number"`
	AmountDue   int64         `gorm:"column:amount_due;not null;default:0" json:"amount_due"`
	Currency    string        `gorm:"column:currency;type:varchar(8)" json:"currency"`
	Status      InvoiceStatus `gorm:"column:status;type:varchar(32);not null;default:'draft'" json:"status"`
	PaidAt      *time.Time    `gorm:"column:paid_at;default:null" json:"paid_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Invoice) TableName() string { return "invoice" }
