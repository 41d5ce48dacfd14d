package models

import "time"

// Account is a user profile row. Schema ownership sits with the main
// application; this service only reads it during tenant resolution.
type Account struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email     string    `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	FullName  string    `gorm:"column:full_name;type:varchar(255)" json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string { return "account" }

type MembershipStatus string

const (
	MembershipStatusActive  MembershipStatus = "active"
	MembershipStatusRemoved MembershipStatus = "removed"
)

// TenantMembership links an account to a tenant. Resolution strategies 2 and 3
// walk Account → TenantMembership → Tenant.
type TenantMembership struct {
	ID        string           `gorm:"column:id;type:uuid;primary_key" json:"id"`
	AccountID string           `gorm:"column:account_id;type:uuid;not null;index:idx_membership_account" json:"account_id"`
	TenantID  string           `gorm:"column:tenant_id;type:uuid;not null;index" json:"tenant_id"`
	Role      string           `gorm:"column:role;type:varchar(32)" json:"role"`
	Status    MembershipStatus `gorm:"column:status;type:varchar(32);not null;default:'active'" json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (TenantMembership) TableName() string { return "tenant_membership" }
