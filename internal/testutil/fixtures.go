package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"finlink/internal/crypto"
	"finlink/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// EncryptionKey is the secret fixtures use to encrypt access tokens.
const EncryptionKey = "test-encryption-key"

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewCodec returns a codec keyed with EncryptionKey.
func NewCodec(t *testing.T) *crypto.Codec {
	t.Helper()
	codec, err := crypto.NewCodec(EncryptionKey)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return codec
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestAdmin creates a user with the admin role.
func CreateTestAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := CreateTestUser(t, db)
	if err := db.Model(user).Update("role", models.RoleAdmin).Error; err != nil {
		t.Fatalf("failed to promote test user: %v", err)
	}
	user.Role = models.RoleAdmin
	return user
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestItem creates an active linked item whose stored token is
// accessToken encrypted with EncryptionKey.
func CreateTestItem(t *testing.T, db *gorm.DB, userID, accessToken string) *models.LinkedItem {
	t.Helper()

	encrypted, err := NewCodec(t).Encrypt(accessToken)
	if err != nil {
		t.Fatalf("failed to encrypt access token: %v", err)
	}

	now := time.Now()
	item := &models.LinkedItem{
		UserID:               userID,
		PlaidItemID:          fmt.Sprintf("plaid-item-%d", nextID()),
		AccessToken:          encrypted,
		InstitutionID:        "ins_109508",
		InstitutionName:      "First Platypus Bank",
		Status:               models.ItemStatusActive,
		LastSuccessfulUpdate: &now,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test item: %v", err)
	}
	return item
}

// CreateTestAccount creates a USD depository account under a linked item.
func CreateTestAccount(t *testing.T, db *gorm.DB, itemID, plaidAccountID string) *models.Account {
	t.Helper()

	usd := "USD"
	current := int64(10000)
	account := &models.Account{
		ItemID:          itemID,
		PlaidAccountID:  plaidAccountID,
		Name:            fmt.Sprintf("Test Account %d", nextID()),
		Type:            "depository",
		CurrentBalance:  &current,
		IsoCurrencyCode: &usd,
		IsActive:        true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestTransaction creates a transaction of amount minor units on date.
func CreateTestTransaction(t *testing.T, db *gorm.DB, accountID, plaidTransactionID string, amount int64, date time.Time) *models.Transaction {
	t.Helper()

	usd := "USD"
	tx := &models.Transaction{
		AccountID:          accountID,
		PlaidTransactionID: plaidTransactionID,
		Amount:             amount,
		IsoCurrencyCode:    &usd,
		Date:               date,
		Name:               fmt.Sprintf("Test Transaction %d", nextID()),
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}
