package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finlink/internal/crypto"
	apperrors "finlink/internal/errors"
	"finlink/internal/logger"
	"finlink/internal/models"
	"finlink/internal/money"
	"finlink/internal/plaid"
)

const (
	syncPageSize = 500
	// maxSyncRestarts bounds restarts after the provider reports that data
	// changed mid-pagination.
	maxSyncRestarts = 3
	dateLayout      = "2006-01-02"
)

// transactionUpsertColumns are overwritten when a delta is redelivered.
var transactionUpsertColumns = []string{
	"account_id", "amount", "iso_currency_code", "unofficial_currency_code",
	"date", "authorized_date", "name", "merchant_name", "payment_channel",
	"category", "category_id", "pending", "pending_transaction_id",
	"account_owner", "transaction_type", "transaction_code", "location",
	"payment_meta", "personal_finance_category", "updated_at",
}

// transactionSyncService pulls cursor-based transaction deltas from the provider.
type transactionSyncService struct {
	db    *gorm.DB
	plaid plaid.Client
	codec *crypto.Codec
	locks *ItemLocker
}

// NewTransactionSyncService creates a new TransactionSyncer.
func NewTransactionSyncService(db *gorm.DB, client plaid.Client, codec *crypto.Codec, locks *ItemLocker) TransactionSyncer {
	return &transactionSyncService{db: db, plaid: client, codec: codec, locks: locks}
}

// SyncTransactions syncs every item of the user in creation order. The first
// failing item stops the run; items before it keep their progress.
func (s *transactionSyncService) SyncTransactions(ctx context.Context, userID string) (*SyncResult, error) {
	var itemIDs []string
	if err := s.db.WithContext(ctx).Model(&models.LinkedItem{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("id", &itemIDs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	result := &SyncResult{
		Added:    []models.Transaction{},
		Modified: []models.Transaction{},
		Removed:  []string{},
	}
	for _, itemID := range itemIDs {
		itemResult, err := s.syncItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		result.Added = append(result.Added, itemResult.Added...)
		result.Modified = append(result.Modified, itemResult.Modified...)
		result.Removed = append(result.Removed, itemResult.Removed...)
	}
	return result, nil
}

func (s *transactionSyncService) syncItem(ctx context.Context, itemID string) (*SyncResult, error) {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	log := logger.Named("sync")

	// Reload under the lock so the cursor reflects any sync that just finished.
	var item models.LinkedItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	token, err := s.codec.Decrypt(item.AccessToken)
	if err != nil {
		appErr := apperrors.Wrap(apperrors.ErrCredential, err)
		markItemError(ctx, s.db, item.ID, appErr, transactionSyncErrorCode)
		return nil, appErr
	}

	startCursor := lo.FromPtr(item.TransactionsCursor)
	for attempt := 0; ; attempt++ {
		result, err := s.pullPages(ctx, &item, token, startCursor)
		if err == nil {
			if err := markItemHealthy(ctx, s.db, item.ID); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
			}
			log.Infow("transactions synced",
				"item_id", item.ID,
				"added", len(result.Added),
				"modified", len(result.Modified),
				"removed", len(result.Removed),
			)
			return result, nil
		}

		if plaid.ErrorCode(err) == plaid.ErrCodeMutationDuringPagination && attempt < maxSyncRestarts {
			log.Warnw("transactions changed during pagination, restarting",
				"item_id", item.ID,
				"attempt", attempt+1,
			)
			continue
		}

		markItemError(ctx, s.db, item.ID, err, transactionSyncErrorCode)
		return nil, err
	}
}

// pullPages walks /transactions/sync from cursor until has_more is false.
// Each page and its next cursor are committed together.
func (s *transactionSyncService) pullPages(ctx context.Context, item *models.LinkedItem, token, cursor string) (*SyncResult, error) {
	result := &SyncResult{
		Added:    []models.Transaction{},
		Modified: []models.Transaction{},
		Removed:  []string{},
	}

	for {
		page, err := s.plaid.SyncTransactions(ctx, token, cursor, syncPageSize)
		if err != nil {
			return nil, apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return applyPage(tx, item.ID, page, result)
		})
		if err != nil {
			if _, ok := apperrors.As(err); ok {
				return nil, err
			}
			return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
		}

		cursor = page.NextCursor
		if !page.HasMore {
			return result, nil
		}
	}
}

// applyPage writes one page of deltas and advances the item's cursor. Deltas
// for accounts not stored under the item are skipped.
func applyPage(tx *gorm.DB, itemID string, page *plaid.TransactionsSyncPage, result *SyncResult) error {
	log := logger.Named("sync")

	var accounts []models.Account
	plaidAccountIDs := lo.Uniq(lo.Map(append(append([]plaid.Transaction{}, page.Added...), page.Modified...),
		func(t plaid.Transaction, _ int) string { return t.AccountID }))
	if len(plaidAccountIDs) > 0 {
		if err := tx.Where("item_id = ? AND plaid_account_id IN ?", itemID, plaidAccountIDs).Find(&accounts).Error; err != nil {
			return err
		}
	}
	accountIDs := lo.SliceToMap(accounts, func(a models.Account) (string, string) {
		return a.PlaidAccountID, a.ID
	})

	resolve := func(t plaid.Transaction) (string, bool) {
		id, ok := accountIDs[t.AccountID]
		if !ok {
			log.Debugw("skipping delta for unknown account",
				"item_id", itemID,
				"plaid_account_id", t.AccountID,
				"plaid_transaction_id", t.TransactionID,
			)
		}
		return id, ok
	}

	for _, t := range page.Added {
		accountID, ok := resolve(t)
		if !ok {
			continue
		}
		row, err := transactionFromProvider(accountID, t)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plaid_transaction_id"}},
			DoUpdates: clause.AssignmentColumns(transactionUpsertColumns),
		}).Create(&row).Error; err != nil {
			return err
		}
		result.Added = append(result.Added, row)
	}

	for _, t := range page.Modified {
		accountID, ok := resolve(t)
		if !ok {
			continue
		}
		row, err := transactionFromProvider(accountID, t)
		if err != nil {
			return err
		}
		// Select forces nil and zero values to be written too.
		res := tx.Model(&models.Transaction{}).
			Where("plaid_transaction_id = ?", t.TransactionID).
			Select(transactionUpsertColumns).
			Updates(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			log.Debugw("modified delta matched no stored transaction",
				"item_id", itemID,
				"plaid_transaction_id", t.TransactionID,
			)
			continue
		}
		result.Modified = append(result.Modified, row)
	}

	removedIDs := lo.Map(page.Removed, func(r plaid.RemovedTransaction, _ int) string { return r.TransactionID })
	if len(removedIDs) > 0 {
		itemAccounts := tx.Model(&models.Account{}).Select("id").Where("item_id = ?", itemID)
		if err := tx.Where("plaid_transaction_id IN ? AND account_id IN (?)", removedIDs, itemAccounts).
			Delete(&models.Transaction{}).Error; err != nil {
			return err
		}
		result.Removed = append(result.Removed, removedIDs...)
	}

	return tx.Model(&models.LinkedItem{}).Where("id = ?", itemID).
		Update("transactions_cursor", page.NextCursor).Error
}

// transactionFromProvider maps a provider delta onto the stored shape.
func transactionFromProvider(accountID string, t plaid.Transaction) (models.Transaction, error) {
	date, err := time.Parse(dateLayout, t.Date)
	if err != nil {
		return models.Transaction{}, apperrors.WrapWithMessage(apperrors.ErrProvider,
			fmt.Sprintf("invalid date %q on transaction %s", t.Date, t.TransactionID), err)
	}

	var authorized *time.Time
	if t.AuthorizedDate != nil && *t.AuthorizedDate != "" {
		d, err := time.Parse(dateLayout, *t.AuthorizedDate)
		if err != nil {
			return models.Transaction{}, apperrors.WrapWithMessage(apperrors.ErrProvider,
				fmt.Sprintf("invalid authorized date %q on transaction %s", *t.AuthorizedDate, t.TransactionID), err)
		}
		authorized = &d
	}

	location, err := jsonText(t.Location)
	if err != nil {
		return models.Transaction{}, err
	}
	paymentMeta, err := jsonText(t.PaymentMeta)
	if err != nil {
		return models.Transaction{}, err
	}
	pfc, err := jsonText(t.PersonalFinanceCategory)
	if err != nil {
		return models.Transaction{}, err
	}

	return models.Transaction{
		AccountID:               accountID,
		PlaidTransactionID:      t.TransactionID,
		Amount:                  money.ToMinor(t.Amount, t.Currency()),
		IsoCurrencyCode:         t.IsoCurrencyCode,
		UnofficialCurrencyCode:  t.UnofficialCurrencyCode,
		Date:                    date,
		AuthorizedDate:          authorized,
		Name:                    t.Name,
		MerchantName:            t.MerchantName,
		PaymentChannel:          t.PaymentChannel,
		Category:                t.Category,
		CategoryID:              t.CategoryID,
		Pending:                 t.Pending,
		PendingTransactionID:    t.PendingTransactionID,
		AccountOwner:            t.AccountOwner,
		TransactionType:         t.TransactionType,
		TransactionCode:         t.TransactionCode,
		Location:                location,
		PaymentMeta:             paymentMeta,
		PersonalFinanceCategory: pfc,
	}, nil
}

// jsonText encodes a nested provider payload as JSON text, or nil when absent.
func jsonText[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding nested payload: %w", err)
	}
	s := string(data)
	return &s, nil
}
