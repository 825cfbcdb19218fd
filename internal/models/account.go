package models

import "time"

// Account is a financial account under a LinkedItem. Balances are stored in
// minor units of the account currency and are nil when the provider omits them.
type Account struct {
	Base
	ItemID                 string     `gorm:"type:uuid;not null;index" json:"item_id"`
	PlaidAccountID         string     `gorm:"size:255;not null;uniqueIndex" json:"plaid_account_id"`
	Name                   string     `gorm:"size:255;not null" json:"name"`
	OfficialName           *string    `gorm:"size:255" json:"official_name,omitempty"`
	Type                   string     `gorm:"size:50;not null" json:"type"`
	Subtype                *string    `gorm:"column:sub_type;size:50" json:"subtype,omitempty"`
	Mask                   *string    `gorm:"size:10" json:"mask,omitempty"`
	CurrentBalance         *int64     `json:"current_balance,omitempty"`
	AvailableBalance       *int64     `json:"available_balance,omitempty"`
	IsoCurrencyCode        *string    `gorm:"size:3" json:"iso_currency_code,omitempty"`
	UnofficialCurrencyCode *string    `gorm:"size:10" json:"unofficial_currency_code,omitempty"`
	LastBalanceUpdate      *time.Time `json:"last_balance_update,omitempty"`
	IsActive               bool       `gorm:"not null;default:true" json:"is_active"`

	Transactions []Transaction `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the table to the name used by the SQL migrations.
func (Account) TableName() string { return "plaid_accounts" }

// Currency returns the ISO code, falling back to the unofficial code.
func (a *Account) Currency() string {
	if a.IsoCurrencyCode != nil && *a.IsoCurrencyCode != "" {
		return *a.IsoCurrencyCode
	}
	if a.UnofficialCurrencyCode != nil {
		return *a.UnofficialCurrencyCode
	}
	return ""
}
