package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finlink/internal/models"
	"finlink/internal/plaid"
	"finlink/internal/testutil"
)

// pagesByCursor serves sync pages keyed by the requested cursor.
func pagesByCursor(pages map[string]*plaid.TransactionsSyncPage) func(context.Context, string, string, int) (*plaid.TransactionsSyncPage, error) {
	return func(_ context.Context, _, cursor string, _ int) (*plaid.TransactionsSyncPage, error) {
		page, ok := pages[cursor]
		if !ok {
			return nil, errors.New("unexpected cursor " + cursor)
		}
		return page, nil
	}
}

func TestSyncTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("applies_added_modified_removed", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		account := testutil.CreateTestAccount(t, db, item.ID, "acc-1")
		testutil.CreateTestTransaction(t, db, account.ID, "tx-modified", 100, time.Now())
		testutil.CreateTestTransaction(t, db, account.ID, "tx-removed", 200, time.Now())

		// A transaction under another user's item must survive a removal of its id.
		other := testutil.CreateTestUser(t, db)
		otherItem := testutil.CreateTestItem(t, db, other.ID, "access-sandbox-2")
		otherAccount := testutil.CreateTestAccount(t, db, otherItem.ID, "acc-other")
		testutil.CreateTestTransaction(t, db, otherAccount.ID, "tx-foreign", 300, time.Now())

		modified := providerTransaction("tx-modified", "acc-1", 12.5, "2024-01-10")
		modified.Pending = true
		client := &mockPlaidClient{syncTransactionsFn: pagesByCursor(map[string]*plaid.TransactionsSyncPage{
			"": {
				Added:      []plaid.Transaction{providerTransaction("tx-new-1", "acc-1", 25.99, "2024-01-15")},
				NextCursor: "cursor-1",
				HasMore:    true,
			},
			"cursor-1": {
				Added:    []plaid.Transaction{providerTransaction("tx-new-2", "acc-1", -100, "2024-01-16")},
				Modified: []plaid.Transaction{modified},
				Removed: []plaid.RemovedTransaction{
					{TransactionID: "tx-removed"},
					{TransactionID: "tx-foreign"},
				},
				NextCursor: "cursor-2",
			},
		})}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		result, err := svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)

		assert.Len(t, result.Added, 2)
		assert.Len(t, result.Modified, 1)
		assert.ElementsMatch(t, []string{"tx-removed", "tx-foreign"}, result.Removed)
		assert.Equal(t, 2, client.callCount("SyncTransactions"))

		var added models.Transaction
		require.NoError(t, db.First(&added, "plaid_transaction_id = ?", "tx-new-1").Error)
		assert.Equal(t, int64(2599), added.Amount)
		assert.Equal(t, account.ID, added.AccountID)
		assert.Equal(t, []string{"Food and Drink", "Restaurants"}, added.Category)
		assert.Equal(t, "2024-01-15", added.Date.Format(dateLayout))

		var refund models.Transaction
		require.NoError(t, db.First(&refund, "plaid_transaction_id = ?", "tx-new-2").Error)
		assert.Equal(t, int64(-10000), refund.Amount)

		var changed models.Transaction
		require.NoError(t, db.First(&changed, "plaid_transaction_id = ?", "tx-modified").Error)
		assert.Equal(t, int64(1250), changed.Amount)
		assert.True(t, changed.Pending)

		var count int64
		db.Model(&models.Transaction{}).Where("plaid_transaction_id = ?", "tx-removed").Count(&count)
		assert.Zero(t, count)
		db.Model(&models.Transaction{}).Where("plaid_transaction_id = ?", "tx-foreign").Count(&count)
		assert.Equal(t, int64(1), count, "removal must be scoped to the syncing item")

		var reloaded models.LinkedItem
		require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
		require.NotNil(t, reloaded.TransactionsCursor)
		assert.Equal(t, "cursor-2", *reloaded.TransactionsCursor)
		assert.Equal(t, models.ItemStatusActive, reloaded.Status)
	})

	t.Run("resumes_from_stored_cursor", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		testutil.CreateTestAccount(t, db, item.ID, "acc-1")
		require.NoError(t, db.Model(item).Update("transactions_cursor", "cursor-9").Error)

		var gotCursor string
		client := &mockPlaidClient{syncTransactionsFn: func(_ context.Context, _, cursor string, count int) (*plaid.TransactionsSyncPage, error) {
			gotCursor = cursor
			assert.Equal(t, syncPageSize, count)
			return &plaid.TransactionsSyncPage{NextCursor: "cursor-10"}, nil
		}}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "cursor-9", gotCursor)
	})

	t.Run("page_failure_keeps_committed_pages", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		testutil.CreateTestAccount(t, db, item.ID, "acc-1")

		client := &mockPlaidClient{syncTransactionsFn: func(_ context.Context, _, cursor string, _ int) (*plaid.TransactionsSyncPage, error) {
			if cursor == "" {
				return &plaid.TransactionsSyncPage{
					Added:      []plaid.Transaction{providerTransaction("tx-1", "acc-1", 10, "2024-02-01")},
					NextCursor: "cursor-1",
					HasMore:    true,
				}, nil
			}
			return nil, &plaid.Error{ErrorType: "API_ERROR", ErrorCode: "INTERNAL_SERVER_ERROR", ErrorMessage: "boom"}
		}}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")

		var count int64
		db.Model(&models.Transaction{}).Where("plaid_transaction_id = ?", "tx-1").Count(&count)
		assert.Equal(t, int64(1), count)

		var reloaded models.LinkedItem
		require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
		require.NotNil(t, reloaded.TransactionsCursor)
		assert.Equal(t, "cursor-1", *reloaded.TransactionsCursor)
		assert.Equal(t, models.ItemStatusError, reloaded.Status)
		require.NotNil(t, reloaded.ErrorCode)
		assert.Equal(t, "INTERNAL_SERVER_ERROR", *reloaded.ErrorCode)
	})

	t.Run("transport_failure_records_sync_error", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")

		client := &mockPlaidClient{syncTransactionsFn: func(context.Context, string, string, int) (*plaid.TransactionsSyncPage, error) {
			return nil, errors.New("dial tcp: timeout")
		}}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")

		var reloaded models.LinkedItem
		require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
		require.NotNil(t, reloaded.ErrorCode)
		assert.Equal(t, "SYNC_ERROR", *reloaded.ErrorCode)
	})

	t.Run("no_items_makes_no_provider_calls", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		client := &mockPlaidClient{}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		result, err := svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, result.Added)
		assert.Empty(t, result.Modified)
		assert.Empty(t, result.Removed)
		assert.Zero(t, client.totalCalls())
	})

	t.Run("skips_unknown_accounts", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		testutil.CreateTestAccount(t, db, item.ID, "acc-1")

		client := &mockPlaidClient{syncTransactionsFn: pagesByCursor(map[string]*plaid.TransactionsSyncPage{
			"": {
				Added: []plaid.Transaction{
					providerTransaction("tx-known", "acc-1", 1, "2024-03-01"),
					providerTransaction("tx-unknown", "acc-missing", 2, "2024-03-01"),
				},
				NextCursor: "cursor-1",
			},
		})}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		result, err := svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, result.Added, 1)
		assert.Equal(t, "tx-known", result.Added[0].PlaidTransactionID)

		var count int64
		db.Model(&models.Transaction{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("modified_without_stored_row_is_not_counted", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		account := testutil.CreateTestAccount(t, db, item.ID, "acc-1")
		testutil.CreateTestTransaction(t, db, account.ID, "tx-stored", 100, time.Now())

		client := &mockPlaidClient{syncTransactionsFn: pagesByCursor(map[string]*plaid.TransactionsSyncPage{
			"": {
				Modified: []plaid.Transaction{
					providerTransaction("tx-stored", "acc-1", 3, "2024-03-01"),
					providerTransaction("tx-never-seen", "acc-1", 4, "2024-03-01"),
				},
				NextCursor: "cursor-1",
			},
		})}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		result, err := svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, result.Modified, 1)
		assert.Equal(t, "tx-stored", result.Modified[0].PlaidTransactionID)

		var count int64
		db.Model(&models.Transaction{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("redelivered_added_is_idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		testutil.CreateTestAccount(t, db, item.ID, "acc-1")

		amount := 10.0
		client := &mockPlaidClient{syncTransactionsFn: func(context.Context, string, string, int) (*plaid.TransactionsSyncPage, error) {
			return &plaid.TransactionsSyncPage{
				Added:      []plaid.Transaction{providerTransaction("tx-1", "acc-1", amount, "2024-03-01")},
				NextCursor: "cursor-1",
			}, nil
		}}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)
		amount = 11.0
		_, err = svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)

		var rows []models.Transaction
		require.NoError(t, db.Where("plaid_transaction_id = ?", "tx-1").Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(1100), rows[0].Amount)
	})

	t.Run("restarts_after_mutation_during_pagination", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		testutil.CreateTestAccount(t, db, item.ID, "acc-1")

		var cursors []string
		mutated := false
		client := &mockPlaidClient{syncTransactionsFn: func(_ context.Context, _, cursor string, _ int) (*plaid.TransactionsSyncPage, error) {
			cursors = append(cursors, cursor)
			switch cursor {
			case "":
				return &plaid.TransactionsSyncPage{
					Added:      []plaid.Transaction{providerTransaction("tx-1", "acc-1", 5, "2024-04-01")},
					NextCursor: "cursor-1",
					HasMore:    true,
				}, nil
			case "cursor-1":
				if !mutated {
					mutated = true
					return nil, &plaid.Error{ErrorType: "TRANSACTIONS_ERROR", ErrorCode: plaid.ErrCodeMutationDuringPagination}
				}
				return &plaid.TransactionsSyncPage{NextCursor: "cursor-2"}, nil
			}
			return nil, errors.New("unexpected cursor " + cursor)
		}}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"", "cursor-1", "", "cursor-1"}, cursors)

		var count int64
		db.Model(&models.Transaction{}).Count(&count)
		assert.Equal(t, int64(1), count)

		var reloaded models.LinkedItem
		require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
		assert.Equal(t, "cursor-2", *reloaded.TransactionsCursor)
		assert.Equal(t, models.ItemStatusActive, reloaded.Status)
	})

	t.Run("gives_up_after_repeated_mutations", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")

		client := &mockPlaidClient{syncTransactionsFn: func(context.Context, string, string, int) (*plaid.TransactionsSyncPage, error) {
			return nil, &plaid.Error{ErrorType: "TRANSACTIONS_ERROR", ErrorCode: plaid.ErrCodeMutationDuringPagination}
		}}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")
		assert.Equal(t, maxSyncRestarts+1, client.callCount("SyncTransactions"))

		var reloaded models.LinkedItem
		require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
		require.NotNil(t, reloaded.ErrorCode)
		assert.Equal(t, plaid.ErrCodeMutationDuringPagination, *reloaded.ErrorCode)
	})

	t.Run("first_failing_item_stops_the_run", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		first := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-first")
		second := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-second")
		require.NoError(t, db.Model(second).Update("created_at", first.CreatedAt.Add(time.Hour)).Error)

		var tokens []string
		client := &mockPlaidClient{syncTransactionsFn: func(_ context.Context, token, _ string, _ int) (*plaid.TransactionsSyncPage, error) {
			tokens = append(tokens, token)
			return nil, &plaid.Error{ErrorType: "ITEM_ERROR", ErrorCode: plaid.ErrCodeItemLoginRequired}
		}}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")
		assert.Equal(t, []string{"access-sandbox-first"}, tokens)

		var untouched models.LinkedItem
		require.NoError(t, db.First(&untouched, "id = ?", second.ID).Error)
		assert.Equal(t, models.ItemStatusActive, untouched.Status)
	})

	t.Run("invalid_date_fails_the_page", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		user := testutil.CreateTestUser(t, db)
		item := testutil.CreateTestItem(t, db, user.ID, "access-sandbox-1")
		testutil.CreateTestAccount(t, db, item.ID, "acc-1")

		client := &mockPlaidClient{syncTransactionsFn: pagesByCursor(map[string]*plaid.TransactionsSyncPage{
			"": {
				Added: []plaid.Transaction{
					providerTransaction("tx-ok", "acc-1", 1, "2024-05-01"),
					providerTransaction("tx-bad", "acc-1", 1, "05/01/2024"),
				},
				NextCursor: "cursor-1",
			},
		})}
		svc := NewTransactionSyncService(db, client, testutil.NewCodec(t), NewItemLocker())

		_, err := svc.SyncTransactions(ctx, user.ID)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")

		var count int64
		db.Model(&models.Transaction{}).Count(&count)
		assert.Zero(t, count, "a failed page must roll back entirely")

		var reloaded models.LinkedItem
		require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
		assert.Nil(t, reloaded.TransactionsCursor)
	})
}

func TestTransactionFromProvider(t *testing.T) {
	t.Run("maps_nested_payloads", func(t *testing.T) {
		pt := providerTransaction("tx-1", "acc-1", 42.42, "2024-06-30")
		pt.AuthorizedDate = strPtr("2024-06-29")
		pt.Location = &plaid.Location{City: strPtr("San Francisco")}

		row, err := transactionFromProvider("account-id", pt)
		require.NoError(t, err)
		assert.Equal(t, int64(4242), row.Amount)
		require.NotNil(t, row.AuthorizedDate)
		assert.Equal(t, "2024-06-29", row.AuthorizedDate.Format(dateLayout))
		require.NotNil(t, row.Location)
		assert.Contains(t, *row.Location, "San Francisco")
		assert.Nil(t, row.PaymentMeta)
	})

	t.Run("rejects_bad_authorized_date", func(t *testing.T) {
		pt := providerTransaction("tx-1", "acc-1", 1, "2024-06-30")
		pt.AuthorizedDate = strPtr("yesterday")

		_, err := transactionFromProvider("account-id", pt)
		testutil.AssertAppError(t, err, "PROVIDER_ERROR")
	})
}
