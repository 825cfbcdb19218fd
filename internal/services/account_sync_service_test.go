package services

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/lo"

	"finlink/internal/models"
	"finlink/internal/plaid"
	"finlink/internal/testutil"
)

func TestSyncAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts_and_marks_item_active", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		db.Model(item).Updates(map[string]interface{}{"status": models.ItemStatusError, "error_code": "OLD"})

		var gotToken string
		client := &mockPlaidClient{getAccountsFn: func(_ context.Context, token string) ([]plaid.Account, error) {
			gotToken = token
			return []plaid.Account{
				providerAccount("acc-1", "Checking", 110.25),
				providerAccount("acc-2", "Savings", 2000),
			}, nil
		}}
		svc := NewAccountSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		accounts, err := svc.SyncAccounts(ctx, item.ID, nil)
		testutil.AssertNoError(t, err)

		if gotToken != "access-sandbox-1" {
			t.Errorf("expected stored token to be decrypted, got %q", gotToken)
		}
		if len(accounts) != 2 {
			t.Fatalf("expected 2 accounts, got %d", len(accounts))
		}
		byPlaidID := lo.KeyBy(accounts, func(a models.Account) string { return a.PlaidAccountID })
		checking := byPlaidID["acc-1"]
		if checking.CurrentBalance == nil || *checking.CurrentBalance != 11025 {
			t.Errorf("expected balance 11025 minor units, got %v", checking.CurrentBalance)
		}
		if checking.ItemID != item.ID {
			t.Errorf("expected account under item %s, got %s", item.ID, checking.ItemID)
		}

		testutil.AssertItemActive(t, db, item.ID)
	})

	t.Run("idempotent_upsert", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")

		balance := 100.0
		client := &mockPlaidClient{getAccountsFn: func(context.Context, string) ([]plaid.Account, error) {
			return []plaid.Account{providerAccount("acc-1", "Checking", balance)}, nil
		}}
		svc := NewAccountSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		first, err := svc.SyncAccounts(ctx, item.ID, nil)
		testutil.AssertNoError(t, err)

		balance = 55.5
		second, err := svc.SyncAccounts(ctx, item.ID, nil)
		testutil.AssertNoError(t, err)

		var count int64
		db.Model(&models.Account{}).Count(&count)
		if count != 1 {
			t.Errorf("expected 1 account after two syncs, got %d", count)
		}
		if first[0].ID != second[0].ID {
			t.Errorf("expected same row to be updated, got %s and %s", first[0].ID, second[0].ID)
		}
		if *second[0].CurrentBalance != 5550 {
			t.Errorf("expected updated balance 5550, got %d", *second[0].CurrentBalance)
		}
	})

	t.Run("uses_supplied_token", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-stored")

		var gotToken string
		client := &mockPlaidClient{getAccountsFn: func(_ context.Context, token string) ([]plaid.Account, error) {
			gotToken = token
			return nil, nil
		}}
		svc := NewAccountSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		supplied := "access-sandbox-fresh"
		accounts, err := svc.SyncAccounts(ctx, item.ID, &supplied)
		testutil.AssertNoError(t, err)

		if gotToken != supplied {
			t.Errorf("expected supplied token, got %q", gotToken)
		}
		if len(accounts) != 0 {
			t.Errorf("expected no accounts, got %d", len(accounts))
		}
	})

	t.Run("provider_error_marks_item", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")

		client := &mockPlaidClient{getAccountsFn: func(context.Context, string) ([]plaid.Account, error) {
			return nil, &plaid.Error{ErrorType: "ITEM_ERROR", ErrorCode: plaid.ErrCodeItemLoginRequired, ErrorMessage: "login required"}
		}}
		svc := NewAccountSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncAccounts(ctx, item.ID, nil)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")

		testutil.AssertItemError(t, db, item.ID, plaid.ErrCodeItemLoginRequired, "login required")
	})

	t.Run("transport_error_uses_unknown_code", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")

		client := &mockPlaidClient{getAccountsFn: func(context.Context, string) ([]plaid.Account, error) {
			return nil, errors.New("connection reset")
		}}
		svc := NewAccountSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncAccounts(ctx, item.ID, nil)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")

		testutil.AssertItemError(t, db, item.ID, "UNKNOWN", "")
	})

	t.Run("undecryptable_token", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		db.Model(item).Update("plaid_access_token", "not-a-ciphertext")

		client := &mockPlaidClient{}
		svc := NewAccountSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncAccounts(ctx, item.ID, nil)
		testutil.AssertAppError(t, err, "CREDENTIAL_ERROR")
		if client.totalCalls() != 0 {
			t.Errorf("expected no provider calls, got %d", client.totalCalls())
		}
	})

	t.Run("moves_account_seen_under_another_item", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		itemA := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		testutil.CreateTestAccount(t, db, itemA.ID, "acc-1")
		itemB := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-2")

		client := &mockPlaidClient{
			getAccountsFn: func(context.Context, string) ([]plaid.Account, error) {
				return []plaid.Account{providerAccount("acc-1", "Checking", 50)}, nil
			},
			syncTransactionsFn: pagesByCursor(map[string]*plaid.TransactionsSyncPage{
				"": {
					Added:      []plaid.Transaction{providerTransaction("tx-1", "acc-1", 9.5, "2024-03-01")},
					NextCursor: "cursor-1",
				},
			}),
		}
		locks := NewItemLocker()
		codec := testutil.NewCodec(t)

		accounts, err := NewAccountSyncService(db, client, codec, locks).SyncAccounts(ctx, itemB.ID, nil)
		testutil.AssertNoError(t, err)
		if len(accounts) != 1 {
			t.Fatalf("expected 1 account, got %d", len(accounts))
		}
		if accounts[0].ItemID != itemB.ID {
			t.Errorf("expected account under item %s, got %s", itemB.ID, accounts[0].ItemID)
		}

		result, err := NewTransactionSyncService(db, client, codec, locks).SyncTransactions(ctx, user.ID)
		testutil.AssertNoError(t, err)
		if len(result.Added) != 1 {
			t.Fatalf("expected 1 added transaction, got %d", len(result.Added))
		}
		if result.Added[0].AccountID != accounts[0].ID {
			t.Errorf("expected transaction on account %s, got %s", accounts[0].ID, result.Added[0].AccountID)
		}
	})

	t.Run("item_not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		svc := NewAccountSyncService(db, &mockPlaidClient{}, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncAccounts(ctx, "0190a6d0-0000-7000-8000-000000000000", nil)
		testutil.AssertAppError(t, err, "ITEM_NOT_FOUND")
	})
}
