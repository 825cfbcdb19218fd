package services

import (
	"context"
	"errors"
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

// accountUpsertColumns are overwritten when an account already exists.
var accountUpsertColumns = []string{
	"item_id", "name", "official_name", "type", "sub_type", "mask",
	"current_balance", "available_balance", "iso_currency_code",
	"unofficial_currency_code", "last_balance_update", "is_active", "updated_at",
}

// accountSyncService reconciles stored accounts with the provider.
type accountSyncService struct {
	db    *gorm.DB
	plaid plaid.Client
	codec *crypto.Codec
	locks *ItemLocker
}

// NewAccountSyncService creates a new AccountSyncer.
func NewAccountSyncService(db *gorm.DB, client plaid.Client, codec *crypto.Codec, locks *ItemLocker) AccountSyncer {
	return &accountSyncService{db: db, plaid: client, codec: codec, locks: locks}
}

// SyncAccounts fetches the item's accounts and upserts them by provider
// account id. When accessToken is nil the stored token is decrypted.
func (s *accountSyncService) SyncAccounts(ctx context.Context, itemID string, accessToken *string) ([]models.Account, error) {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	var item models.LinkedItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrItemNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	accounts, err := s.syncItemAccounts(ctx, &item, accessToken)
	if err != nil {
		markItemError(ctx, s.db, item.ID, err, accountSyncErrorCode)
		return nil, err
	}

	if err := markItemHealthy(ctx, s.db, item.ID); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return accounts, nil
}

func (s *accountSyncService) syncItemAccounts(ctx context.Context, item *models.LinkedItem, accessToken *string) ([]models.Account, error) {
	token := lo.FromPtr(accessToken)
	if accessToken == nil {
		decrypted, err := s.codec.Decrypt(item.AccessToken)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCredential, err)
		}
		token = decrypted
	}

	remote, err := s.plaid.GetAccounts(ctx, token)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
	}

	now := time.Now()
	rows := lo.Map(remote, func(a plaid.Account, _ int) models.Account {
		return accountFromProvider(item.ID, a, now)
	})
	if len(rows) == 0 {
		return []models.Account{}, nil
	}

	var accounts []models.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plaid_account_id"}},
			DoUpdates: clause.AssignmentColumns(accountUpsertColumns),
		}).Create(&rows).Error; err != nil {
			return err
		}

		ids := lo.Map(rows, func(a models.Account, _ int) string { return a.PlaidAccountID })
		return tx.Where("plaid_account_id IN ?", ids).Order("created_at ASC").Find(&accounts).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	logger.Named("sync").Infow("accounts reconciled",
		"item_id", item.ID,
		"accounts", len(accounts),
	)
	return accounts, nil
}

// accountFromProvider maps a provider account onto the stored shape.
func accountFromProvider(itemID string, a plaid.Account, now time.Time) models.Account {
	currency := a.Balances.Currency()
	return models.Account{
		ItemID:                 itemID,
		PlaidAccountID:         a.AccountID,
		Name:                   a.Name,
		OfficialName:           a.OfficialName,
		Type:                   a.Type,
		Subtype:                a.Subtype,
		Mask:                   a.Mask,
		CurrentBalance:         money.ToMinorPtr(a.Balances.Current, currency),
		AvailableBalance:       money.ToMinorPtr(a.Balances.Available, currency),
		IsoCurrencyCode:        a.Balances.IsoCurrencyCode,
		UnofficialCurrencyCode: a.Balances.UnofficialCurrencyCode,
		LastBalanceUpdate:      &now,
		IsActive:               true,
	}
}
