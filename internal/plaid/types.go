package plaid

import "time"

// User identifies the end user in a Link session.
type User struct {
	ClientUserID string `json:"client_user_id"`
}

// LinkTokenRequest is the body of /link/token/create. Products must be empty
// when AccessToken is set (update mode).
type LinkTokenRequest struct {
	ClientName   string   `json:"client_name"`
	Language     string   `json:"language"`
	CountryCodes []string `json:"country_codes"`
	User         User     `json:"user"`
	Products     []string `json:"products,omitempty"`
	Webhook      string   `json:"webhook,omitempty"`
	AccessToken  string   `json:"access_token,omitempty"`
}

// LinkToken is a short-lived token used to open Link on the client.
type LinkToken struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id"`
}

// TokenExchange is the result of exchanging a public token.
type TokenExchange struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// Item describes a connection as reported by /item/get.
type Item struct {
	ItemID                string     `json:"item_id"`
	InstitutionID         string     `json:"institution_id"`
	ConsentExpirationTime *time.Time `json:"consent_expiration_time"`
	Webhook               string     `json:"webhook"`
	Error                 *Error     `json:"error"`
}

// Institution is a bank or other financial institution.
type Institution struct {
	InstitutionID string   `json:"institution_id"`
	Name          string   `json:"name"`
	Products      []string `json:"products"`
	CountryCodes  []string `json:"country_codes"`
}

// Balances are decimal amounts in the account currency; any may be absent.
type Balances struct {
	Available              *float64 `json:"available"`
	Current                *float64 `json:"current"`
	Limit                  *float64 `json:"limit"`
	IsoCurrencyCode        *string  `json:"iso_currency_code"`
	UnofficialCurrencyCode *string  `json:"unofficial_currency_code"`
}

// Currency returns the ISO code, falling back to the unofficial one.
func (b Balances) Currency() string {
	if b.IsoCurrencyCode != nil && *b.IsoCurrencyCode != "" {
		return *b.IsoCurrencyCode
	}
	if b.UnofficialCurrencyCode != nil {
		return *b.UnofficialCurrencyCode
	}
	return ""
}

// Account is a financial account reported by /accounts/get.
type Account struct {
	AccountID    string   `json:"account_id"`
	Balances     Balances `json:"balances"`
	Mask         *string  `json:"mask"`
	Name         string   `json:"name"`
	OfficialName *string  `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      *string  `json:"subtype"`
}

// Location is where a transaction happened.
type Location struct {
	Address     *string  `json:"address"`
	City        *string  `json:"city"`
	Region      *string  `json:"region"`
	PostalCode  *string  `json:"postal_code"`
	Country     *string  `json:"country"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	StoreNumber *string  `json:"store_number"`
}

// PaymentMeta carries transfer details for a transaction.
type PaymentMeta struct {
	ByOrderOf        *string `json:"by_order_of"`
	Payee            *string `json:"payee"`
	Payer            *string `json:"payer"`
	PaymentMethod    *string `json:"payment_method"`
	PaymentProcessor *string `json:"payment_processor"`
	PPDID            *string `json:"ppd_id"`
	Reason           *string `json:"reason"`
	ReferenceNumber  *string `json:"reference_number"`
}

// PersonalFinanceCategory is Plaid's two-level category taxonomy.
type PersonalFinanceCategory struct {
	Primary         string  `json:"primary"`
	Detailed        string  `json:"detailed"`
	ConfidenceLevel *string `json:"confidence_level,omitempty"`
}

// Transaction is one added or modified delta from /transactions/sync.
// Dates use the "2006-01-02" layout.
type Transaction struct {
	TransactionID           string                   `json:"transaction_id"`
	AccountID               string                   `json:"account_id"`
	Amount                  float64                  `json:"amount"`
	IsoCurrencyCode         *string                  `json:"iso_currency_code"`
	UnofficialCurrencyCode  *string                  `json:"unofficial_currency_code"`
	Date                    string                   `json:"date"`
	AuthorizedDate          *string                  `json:"authorized_date"`
	Name                    string                   `json:"name"`
	MerchantName            *string                  `json:"merchant_name"`
	PaymentChannel          *string                  `json:"payment_channel"`
	Category                []string                 `json:"category"`
	CategoryID              *string                  `json:"category_id"`
	Pending                 bool                     `json:"pending"`
	PendingTransactionID    *string                  `json:"pending_transaction_id"`
	AccountOwner            *string                  `json:"account_owner"`
	TransactionType         *string                  `json:"transaction_type"`
	TransactionCode         *string                  `json:"transaction_code"`
	Location                *Location                `json:"location"`
	PaymentMeta             *PaymentMeta             `json:"payment_meta"`
	PersonalFinanceCategory *PersonalFinanceCategory `json:"personal_finance_category"`
}

// Currency returns the ISO code, falling back to the unofficial one.
func (t Transaction) Currency() string {
	if t.IsoCurrencyCode != nil && *t.IsoCurrencyCode != "" {
		return *t.IsoCurrencyCode
	}
	if t.UnofficialCurrencyCode != nil {
		return *t.UnofficialCurrencyCode
	}
	return ""
}

// RemovedTransaction identifies a transaction deleted upstream.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id,omitempty"`
}

// TransactionsSyncPage is one page of /transactions/sync deltas.
type TransactionsSyncPage struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
	RequestID  string               `json:"request_id"`
}
