package services

import (
	"context"
	"encoding/json"

	"github.com/samber/lo"
	"gorm.io/gorm"

	apperrors "finlink/internal/errors"
	"finlink/internal/logger"
	"finlink/internal/models"
	"finlink/internal/money"
	"finlink/internal/pagination"
	"finlink/internal/plaid"
)

// TransactionView is a stored transaction with its account and institution.
// Amount is a decimal in the transaction currency; positive values are outflows.
type TransactionView struct {
	ID                      string                         `json:"id"`
	PlaidTransactionID      string                         `json:"plaid_transaction_id"`
	AccountID               string                         `json:"account_id"`
	AccountName             string                         `json:"account_name"`
	InstitutionName         string                         `json:"institution_name"`
	Amount                  float64                        `json:"amount"`
	AmountDisplay           string                         `json:"amount_display"`
	IsoCurrencyCode         *string                        `json:"iso_currency_code,omitempty"`
	UnofficialCurrencyCode  *string                        `json:"unofficial_currency_code,omitempty"`
	Date                    string                         `json:"date"`
	AuthorizedDate          *string                        `json:"authorized_date,omitempty"`
	Name                    string                         `json:"name"`
	MerchantName            *string                        `json:"merchant_name,omitempty"`
	PaymentChannel          *string                        `json:"payment_channel,omitempty"`
	Category                []string                       `json:"category"`
	CategoryID              *string                        `json:"category_id,omitempty"`
	Pending                 bool                           `json:"pending"`
	PendingTransactionID    *string                        `json:"pending_transaction_id,omitempty"`
	Location                *plaid.Location                `json:"location,omitempty"`
	PaymentMeta             *plaid.PaymentMeta             `json:"payment_meta,omitempty"`
	PersonalFinanceCategory *plaid.PersonalFinanceCategory `json:"personal_finance_category,omitempty"`
}

// accountRow is the Account ⋈ LinkedItem projection shared by the account
// and balance queries.
type accountRow struct {
	models.Account
	InstitutionName string
	ItemStatus      models.ItemStatus
}

// queryService answers read-only questions about a user's linked data.
type queryService struct {
	db *gorm.DB
}

// NewQueryService creates a new QueryServicer.
func NewQueryService(db *gorm.DB) QueryServicer {
	return &queryService{db: db}
}

func (s *queryService) userAccounts(ctx context.Context, userID string, accountIDs []string) ([]accountRow, error) {
	q := s.db.WithContext(ctx).Model(&models.Account{}).
		Select("plaid_accounts.*, plaid_items.institution_name AS institution_name, plaid_items.status AS item_status").
		Joins("JOIN plaid_items ON plaid_items.id = plaid_accounts.item_id").
		Where("plaid_items.user_id = ?", userID)
	if len(accountIDs) > 0 {
		q = q.Where("plaid_accounts.id IN ?", accountIDs)
	}

	var rows []accountRow
	if err := q.Order("plaid_accounts.created_at ASC").Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return rows, nil
}

// GetUserAccounts lists the user's accounts across all linked items.
func (s *queryService) GetUserAccounts(ctx context.Context, userID string) ([]AccountSummary, error) {
	rows, err := s.userAccounts(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r accountRow, _ int) AccountSummary {
		currency := r.Currency()
		summary := AccountSummary{
			ID:                     r.ID,
			ItemID:                 r.ItemID,
			Name:                   r.Name,
			OfficialName:           r.OfficialName,
			Type:                   r.Type,
			Subtype:                r.Subtype,
			Mask:                   r.Mask,
			CurrentBalance:         money.FromMinorPtr(r.CurrentBalance, currency),
			AvailableBalance:       money.FromMinorPtr(r.AvailableBalance, currency),
			IsoCurrencyCode:        r.IsoCurrencyCode,
			UnofficialCurrencyCode: r.UnofficialCurrencyCode,
			InstitutionName:        r.InstitutionName,
			ItemStatus:             r.ItemStatus,
		}
		if r.CurrentBalance != nil {
			summary.CurrentBalanceDisplay = money.Display(*r.CurrentBalance, currency)
		}
		return summary
	}), nil
}

// GetAccountBalances returns balances for the user's accounts, optionally
// limited to accountIDs. Ids the user does not own are ignored.
func (s *queryService) GetAccountBalances(ctx context.Context, userID string, accountIDs []string) ([]BalanceSummary, error) {
	rows, err := s.userAccounts(ctx, userID, lo.Uniq(accountIDs))
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r accountRow, _ int) BalanceSummary {
		currency := r.Currency()
		summary := BalanceSummary{
			AccountID:         r.ID,
			Name:              r.Name,
			Type:              r.Type,
			Subtype:           r.Subtype,
			Mask:              r.Mask,
			Current:           money.FromMinorPtr(r.CurrentBalance, currency),
			Available:         money.FromMinorPtr(r.AvailableBalance, currency),
			Currency:          currency,
			InstitutionName:   r.InstitutionName,
			LastBalanceUpdate: r.LastBalanceUpdate,
		}
		if r.CurrentBalance != nil {
			summary.CurrentDisplay = money.Display(*r.CurrentBalance, currency)
		}
		if r.AvailableBalance != nil {
			summary.AvailableDisplay = money.Display(*r.AvailableBalance, currency)
		}
		return summary
	}), nil
}

// ownedTransactions scopes a transaction query to the user's items.
func ownedTransactions(userID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Joins("JOIN plaid_accounts ON plaid_accounts.id = transactions.account_id").
			Joins("JOIN plaid_items ON plaid_items.id = plaid_accounts.item_id").
			Where("plaid_items.user_id = ?", userID)
	}
}

// GetUserTransactions pages through the user's transactions, newest first.
func (s *queryService) GetUserTransactions(ctx context.Context, userID string, page pagination.Request) (*pagination.Response[TransactionView], error) {
	page.Defaults()
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Transaction{}).Scopes(ownedTransactions(userID)).Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	var txs []models.Transaction
	if err := db.Model(&models.Transaction{}).
		Scopes(ownedTransactions(userID), pagination.Paginate(page)).
		Order("transactions.date DESC").
		Order("transactions.id DESC").
		Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	accountIDs := lo.Uniq(lo.Map(txs, func(t models.Transaction, _ int) string { return t.AccountID }))
	var accounts []accountRow
	if len(accountIDs) > 0 {
		var err error
		if accounts, err = s.userAccounts(ctx, userID, accountIDs); err != nil {
			return nil, err
		}
	}
	byID := lo.KeyBy(accounts, func(a accountRow) string { return a.ID })

	views := lo.Map(txs, func(t models.Transaction, _ int) TransactionView {
		return transactionView(t, byID[t.AccountID])
	})
	resp := pagination.NewResponse(views, page, total)
	return &resp, nil
}

func transactionView(t models.Transaction, account accountRow) TransactionView {
	currency := lo.FromPtr(t.IsoCurrencyCode)
	if currency == "" {
		currency = lo.FromPtr(t.UnofficialCurrencyCode)
	}

	view := TransactionView{
		ID:                      t.ID,
		PlaidTransactionID:      t.PlaidTransactionID,
		AccountID:               t.AccountID,
		AccountName:             account.Name,
		InstitutionName:         account.InstitutionName,
		Amount:                  money.FromMinor(t.Amount, currency),
		AmountDisplay:           money.Display(t.Amount, currency),
		IsoCurrencyCode:         t.IsoCurrencyCode,
		UnofficialCurrencyCode:  t.UnofficialCurrencyCode,
		Date:                    t.Date.Format(dateLayout),
		Name:                    t.Name,
		MerchantName:            t.MerchantName,
		PaymentChannel:          t.PaymentChannel,
		Category:                lo.Ternary(t.Category == nil, []string{}, t.Category),
		CategoryID:              t.CategoryID,
		Pending:                 t.Pending,
		PendingTransactionID:    t.PendingTransactionID,
		Location:                decodeJSONText[plaid.Location](t.Location, t.ID),
		PaymentMeta:             decodeJSONText[plaid.PaymentMeta](t.PaymentMeta, t.ID),
		PersonalFinanceCategory: decodeJSONText[plaid.PersonalFinanceCategory](t.PersonalFinanceCategory, t.ID),
	}
	if t.AuthorizedDate != nil {
		d := t.AuthorizedDate.Format(dateLayout)
		view.AuthorizedDate = &d
	}
	return view
}

// decodeJSONText reverses jsonText. Undecodable payloads are logged and dropped.
func decodeJSONText[T any](text *string, transactionID string) *T {
	if text == nil || *text == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(*text), &v); err != nil {
		logger.Named("query").Warnw("stored payload is not valid JSON",
			"transaction_id", transactionID,
			"error", err,
		)
		return nil
	}
	return &v
}
