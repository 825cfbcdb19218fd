package services

import (
	"context"
	"time"

	"finlink/internal/models"
	"finlink/internal/pagination"
)

// Caller identifies who is acting, for ownership checks.
type Caller struct {
	UserID string
	Role   models.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	ListUsers(page pagination.Request) (*pagination.Response[models.User], error)
	UpdateUser(id string, update UserUpdate) (*models.User, error)
	DeleteUser(id string) error
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// UserUpdate holds the optional fields of a profile update.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Role      *models.Role
}

// LinkToken is returned to the client to open Link.
type LinkToken struct {
	LinkToken  string    `json:"linkToken"`
	Expiration time.Time `json:"expiration"`
}

// ExchangeResult describes a newly linked item.
type ExchangeResult struct {
	ItemID          string `json:"itemId"`
	InstitutionName string `json:"institutionName"`
}

// ItemServicer links, inspects and removes institution connections.
type ItemServicer interface {
	CreateLinkToken(ctx context.Context, userID string, itemID *string) (*LinkToken, error)
	CreateSandboxPublicToken(ctx context.Context, institutionID string) (string, error)
	ExchangePublicToken(ctx context.Context, userID, publicToken string) (*ExchangeResult, error)
	GetAuthorizedItem(ctx context.Context, caller Caller, itemID string) (*models.LinkedItem, error)
	RemoveItem(ctx context.Context, caller Caller, itemID string) error
}

// AccountSyncer reconciles an item's accounts with the provider.
type AccountSyncer interface {
	SyncAccounts(ctx context.Context, itemID string, accessToken *string) ([]models.Account, error)
}

// SyncResult lists the deltas applied by a transaction sync.
type SyncResult struct {
	Added    []models.Transaction `json:"added"`
	Modified []models.Transaction `json:"modified"`
	Removed  []string             `json:"removed"`
}

// TransactionSyncer pulls incremental transaction deltas for a user's items.
type TransactionSyncer interface {
	SyncTransactions(ctx context.Context, userID string) (*SyncResult, error)
}

// AccountSummary is an account joined with its linked item.
type AccountSummary struct {
	ID                     string            `json:"id"`
	ItemID                 string            `json:"item_id"`
	Name                   string            `json:"name"`
	OfficialName           *string           `json:"official_name,omitempty"`
	Type                   string            `json:"type"`
	Subtype                *string           `json:"subtype,omitempty"`
	Mask                   *string           `json:"mask,omitempty"`
	CurrentBalance         *float64          `json:"current_balance"`
	AvailableBalance       *float64          `json:"available_balance"`
	CurrentBalanceDisplay  string            `json:"current_balance_display,omitempty"`
	IsoCurrencyCode        *string           `json:"iso_currency_code,omitempty"`
	UnofficialCurrencyCode *string           `json:"unofficial_currency_code,omitempty"`
	InstitutionName        string            `json:"institution_name"`
	ItemStatus             models.ItemStatus `json:"item_status"`
}

// BalanceSummary is the balance view of one account.
type BalanceSummary struct {
	AccountID         string     `json:"account_id"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	Subtype           *string    `json:"subtype,omitempty"`
	Mask              *string    `json:"mask,omitempty"`
	Current           *float64   `json:"current"`
	Available         *float64   `json:"available"`
	CurrentDisplay    string     `json:"current_display,omitempty"`
	AvailableDisplay  string     `json:"available_display,omitempty"`
	Currency          string     `json:"currency"`
	InstitutionName   string     `json:"institution_name"`
	LastBalanceUpdate *time.Time `json:"last_balance_update,omitempty"`
}

// QueryServicer answers read-only questions about a user's linked data.
type QueryServicer interface {
	GetUserAccounts(ctx context.Context, userID string) ([]AccountSummary, error)
	GetAccountBalances(ctx context.Context, userID string, accountIDs []string) ([]BalanceSummary, error)
	GetUserTransactions(ctx context.Context, userID string, page pagination.Request) (*pagination.Response[TransactionView], error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
