package models

import "time"

// Transaction is one ledger entry under an Account. Amount is in minor units;
// positive values are outflows, as reported by the provider. Location,
// PaymentMeta and PersonalFinanceCategory hold the provider payloads as JSON text.
type Transaction struct {
	Base
	AccountID               string     `gorm:"type:uuid;not null;index" json:"account_id"`
	PlaidTransactionID      string     `gorm:"size:255;not null;uniqueIndex" json:"plaid_transaction_id"`
	Amount                  int64      `gorm:"type:bigint;not null" json:"amount"`
	IsoCurrencyCode         *string    `gorm:"size:3" json:"iso_currency_code,omitempty"`
	UnofficialCurrencyCode  *string    `gorm:"size:10" json:"unofficial_currency_code,omitempty"`
	Date                    time.Time  `gorm:"type:date;not null;index" json:"date"`
	AuthorizedDate          *time.Time `gorm:"type:date" json:"authorized_date,omitempty"`
	Name                    string     `gorm:"size:255;not null" json:"name"`
	MerchantName            *string    `gorm:"size:255" json:"merchant_name,omitempty"`
	PaymentChannel          *string    `gorm:"size:50" json:"payment_channel,omitempty"`
	Category                []string   `gorm:"type:text;serializer:json" json:"category,omitempty"`
	CategoryID              *string    `gorm:"size:50" json:"category_id,omitempty"`
	Pending                 bool       `gorm:"not null;default:false" json:"pending"`
	PendingTransactionID    *string    `gorm:"size:255" json:"pending_transaction_id,omitempty"`
	AccountOwner            *string    `gorm:"size:255" json:"account_owner,omitempty"`
	TransactionType         *string    `gorm:"size:50" json:"transaction_type,omitempty"`
	TransactionCode         *string    `gorm:"size:50" json:"transaction_code,omitempty"`
	Location                *string    `gorm:"type:text" json:"-"`
	PaymentMeta             *string    `gorm:"type:text" json:"-"`
	PersonalFinanceCategory *string    `gorm:"type:text" json:"-"`
}
