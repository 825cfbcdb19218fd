package models

import "time"

// ItemStatus is the health of an institution connection.
type ItemStatus string

const (
	ItemStatusActive ItemStatus = "active"
	ItemStatusError  ItemStatus = "error"
)

// LinkedItem is one user's connection to one institution through Plaid.
type LinkedItem struct {
	Base
	UserID                string     `gorm:"type:uuid;not null;index" json:"user_id"`
	PlaidItemID           string     `gorm:"size:255;not null;uniqueIndex" json:"plaid_item_id"`
	AccessToken           string     `gorm:"column:plaid_access_token;type:text;not null" json:"-"`
	InstitutionID         string     `gorm:"size:255;not null" json:"institution_id"`
	InstitutionName       string     `gorm:"size:255;not null" json:"institution_name"`
	Status                ItemStatus `gorm:"size:50;not null;default:'active'" json:"status"`
	LastSuccessfulUpdate  *time.Time `json:"last_successful_update,omitempty"`
	ErrorCode             *string    `gorm:"size:100" json:"error_code,omitempty"`
	ErrorMessage          *string    `gorm:"type:text" json:"error_message,omitempty"`
	ConsentExpirationTime *time.Time `json:"consent_expiration_time,omitempty"`
	TransactionsCursor    *string    `gorm:"type:text" json:"-"`

	Accounts []Account `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"accounts,omitempty"`
}

// TableName pins the table to the name used by the SQL migrations.
func (LinkedItem) TableName() string { return "plaid_items" }
