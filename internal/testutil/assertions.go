package testutil

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	apperrors "finlink/internal/errors"
	"finlink/internal/models"
)

// AssertAppError fails unless err unwraps to an *AppError carrying code.
func AssertAppError(t *testing.T, err error, code string) {
	t.Helper()

	var appErr *apperrors.AppError
	switch {
	case err == nil:
		t.Fatalf("expected AppError %q, got nil", code)
	case !errors.As(err, &appErr):
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	case appErr.Code != code:
		t.Errorf("expected error code %q, got %q (message: %s)", code, appErr.Code, appErr.Message)
	}
}

// AssertNoError stops the test on a non-nil err.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertItemError reloads the item and checks it was flagged with code.
// An empty message skips the message check.
func AssertItemError(t *testing.T, db *gorm.DB, itemID, code, message string) {
	t.Helper()

	item := reloadItem(t, db, itemID)
	if item.Status != models.ItemStatusError {
		t.Errorf("expected item status %q, got %q", models.ItemStatusError, item.Status)
	}
	if item.ErrorCode == nil || *item.ErrorCode != code {
		t.Errorf("expected item error code %q, got %v", code, item.ErrorCode)
	}
	if message != "" && (item.ErrorMessage == nil || *item.ErrorMessage != message) {
		t.Errorf("expected item error message %q, got %v", message, item.ErrorMessage)
	}
}

// AssertItemActive reloads the item and checks it carries no error.
func AssertItemActive(t *testing.T, db *gorm.DB, itemID string) {
	t.Helper()

	item := reloadItem(t, db, itemID)
	if item.Status != models.ItemStatusActive {
		t.Errorf("expected item status %q, got %q", models.ItemStatusActive, item.Status)
	}
	if item.ErrorCode != nil {
		t.Errorf("expected no item error code, got %q", *item.ErrorCode)
	}
}

func reloadItem(t *testing.T, db *gorm.DB, itemID string) models.LinkedItem {
	t.Helper()
	var item models.LinkedItem
	if err := db.First(&item, "id = ?", itemID).Error; err != nil {
		t.Fatalf("failed to reload item %s: %v", itemID, err)
	}
	return item
}
