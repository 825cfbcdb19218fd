package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"finlink/internal/config"
	"finlink/internal/crypto"
	apperrors "finlink/internal/errors"
	"finlink/internal/logger"
	"finlink/internal/models"
	"finlink/internal/plaid"
)

const (
	linkLanguage = "en"
	// defaultSandboxInstitution is Plaid's "First Platypus Bank".
	defaultSandboxInstitution = "ins_109508"
)

// itemService links and removes institution connections.
type itemService struct {
	db       *gorm.DB
	plaid    plaid.Client
	codec    *crypto.Codec
	accounts AccountSyncer
	cfg      config.PlaidConfig
}

// NewItemService creates a new ItemServicer.
func NewItemService(db *gorm.DB, client plaid.Client, codec *crypto.Codec, accounts AccountSyncer, cfg config.PlaidConfig) ItemServicer {
	return &itemService{db: db, plaid: client, codec: codec, accounts: accounts, cfg: cfg}
}

// CreateLinkToken creates a Link token for userID. With itemID the token
// opens Link in update mode for that item, which must belong to the user.
func (s *itemService) CreateLinkToken(ctx context.Context, userID string, itemID *string) (*LinkToken, error) {
	req := plaid.LinkTokenRequest{
		ClientName:   s.cfg.ClientName,
		Language:     linkLanguage,
		CountryCodes: s.cfg.CountryCodes,
		User:         plaid.User{ClientUserID: userID},
		Products:     s.cfg.Products,
		Webhook:      s.cfg.WebhookURL,
	}

	if itemID != nil {
		var item models.LinkedItem
		if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", *itemID, userID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrItemNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
		}
		token, err := s.codec.Decrypt(item.AccessToken)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCredential, err)
		}
		req.AccessToken = token
		req.Products = nil
	}

	resp, err := s.plaid.CreateLinkToken(ctx, req)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
	}
	return &LinkToken{LinkToken: resp.LinkToken, Expiration: resp.Expiration}, nil
}

// CreateSandboxPublicToken mints a public token without the Link UI. It is
// only available against the sandbox environment.
func (s *itemService) CreateSandboxPublicToken(ctx context.Context, institutionID string) (string, error) {
	if s.cfg.Env != "sandbox" {
		return "", apperrors.WithMessage(apperrors.ErrNotAvailable, "Sandbox tokens are only available in the sandbox environment")
	}
	if institutionID == "" {
		institutionID = defaultSandboxInstitution
	}

	token, err := s.plaid.CreateSandboxPublicToken(ctx, institutionID, s.cfg.Products)
	if err != nil {
		return "", apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
	}
	return token, nil
}

// ExchangePublicToken trades a Link public token for an access token, stores
// the new item and reconciles its accounts.
func (s *itemService) ExchangePublicToken(ctx context.Context, userID, publicToken string) (*ExchangeResult, error) {
	exchange, err := s.plaid.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
	}

	remoteItem, err := s.plaid.GetItem(ctx, exchange.AccessToken)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
	}

	institution, err := s.plaid.GetInstitution(ctx, remoteItem.InstitutionID, s.cfg.CountryCodes)
	if err != nil {
		return nil, apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
	}

	encrypted, err := s.codec.Encrypt(exchange.AccessToken)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCredential, err)
	}

	now := time.Now()
	item := &models.LinkedItem{
		UserID:                userID,
		PlaidItemID:           exchange.ItemID,
		AccessToken:           encrypted,
		InstitutionID:         remoteItem.InstitutionID,
		InstitutionName:       institution.Name,
		Status:                models.ItemStatusActive,
		LastSuccessfulUpdate:  &now,
		ConsentExpirationTime: remoteItem.ConsentExpirationTime,
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Wrap(apperrors.ErrDuplicateItem, err)
		}
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	logger.Named("items").Infow("item linked",
		"user_id", userID,
		"item_id", item.ID,
		"institution", institution.Name,
	)

	if _, err := s.accounts.SyncAccounts(ctx, item.ID, &exchange.AccessToken); err != nil {
		return nil, err
	}

	return &ExchangeResult{ItemID: item.ID, InstitutionName: institution.Name}, nil
}

// GetAuthorizedItem loads an item the caller owns. Admins may load any item.
func (s *itemService) GetAuthorizedItem(ctx context.Context, caller Caller, itemID string) (*models.LinkedItem, error) {
	var item models.LinkedItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrItemNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	if item.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	return &item, nil
}

// RemoveItem revokes the item at the provider, then deletes it together with
// its accounts and transactions.
func (s *itemService) RemoveItem(ctx context.Context, caller Caller, itemID string) error {
	item, err := s.GetAuthorizedItem(ctx, caller, itemID)
	if err != nil {
		return err
	}

	token, err := s.codec.Decrypt(item.AccessToken)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCredential, err)
	}
	if err := s.plaid.RemoveItem(ctx, token); err != nil {
		return apperrors.WrapWithMessage(apperrors.ErrProvider, plaid.ErrorMessage(err), err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accountIDs := tx.Model(&models.Account{}).Select("id").Where("item_id = ?", item.ID)
		if err := tx.Where("account_id IN (?)", accountIDs).Delete(&models.Transaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", item.ID).Delete(&models.Account{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.LinkedItem{}, "id = ?", item.ID).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	logger.Named("items").Infow("item removed", "item_id", item.ID, "user_id", item.UserID)
	return nil
}

// isUniqueViolation matches unique-constraint errors from Postgres and SQLite.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
