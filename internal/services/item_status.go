package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"finlink/internal/logger"
	"finlink/internal/models"
	"finlink/internal/plaid"
)

// Fallback codes recorded on an item when the failure carries no provider code.
const (
	accountSyncErrorCode     = "UNKNOWN"
	transactionSyncErrorCode = "SYNC_ERROR"
)

// markItemHealthy records a successful sync on the item.
func markItemHealthy(ctx context.Context, db *gorm.DB, itemID string) error {
	return db.WithContext(ctx).Model(&models.LinkedItem{}).Where("id = ?", itemID).Updates(map[string]interface{}{
		"status":                 models.ItemStatusActive,
		"error_code":             nil,
		"error_message":          nil,
		"last_successful_update": time.Now(),
	}).Error
}

// markItemError records cause on the item. The provider's error code is used
// when present, fallbackCode otherwise. Failures to record are only logged so
// the original error reaches the caller.
func markItemError(ctx context.Context, db *gorm.DB, itemID string, cause error, fallbackCode string) {
	code := plaid.ErrorCode(cause)
	if code == "" {
		code = fallbackCode
	}
	message := plaid.ErrorMessage(cause)

	// The request context may already be cancelled; the status write must still land.
	err := db.WithContext(context.WithoutCancel(ctx)).Model(&models.LinkedItem{}).Where("id = ?", itemID).Updates(map[string]interface{}{
		"status":        models.ItemStatusError,
		"error_code":    code,
		"error_message": message,
	}).Error
	if err != nil {
		logger.Named("sync").Errorw("failed to record item error",
			"item_id", itemID,
			"code", code,
			"error", err,
		)
	}
}
