package services

import (
	"context"
	"errors"
	"sync"

	"finlink/internal/plaid"
)

var errNotMocked = errors.New("provider call not mocked")

// mockPlaidClient is a fn-field fake of plaid.Client that counts calls.
type mockPlaidClient struct {
	createLinkTokenFn          func(ctx context.Context, req plaid.LinkTokenRequest) (*plaid.LinkToken, error)
	createSandboxPublicTokenFn func(ctx context.Context, institutionID string, products []string) (string, error)
	exchangePublicTokenFn      func(ctx context.Context, publicToken string) (*plaid.TokenExchange, error)
	getItemFn                  func(ctx context.Context, accessToken string) (*plaid.Item, error)
	getInstitutionFn           func(ctx context.Context, institutionID string, countryCodes []string) (*plaid.Institution, error)
	getAccountsFn              func(ctx context.Context, accessToken string) ([]plaid.Account, error)
	syncTransactionsFn         func(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncPage, error)
	removeItemFn               func(ctx context.Context, accessToken string) error

	mu    sync.Mutex
	calls map[string]int
}

var _ plaid.Client = (*mockPlaidClient)(nil)

func (m *mockPlaidClient) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

func (m *mockPlaidClient) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockPlaidClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockPlaidClient) CreateLinkToken(ctx context.Context, req plaid.LinkTokenRequest) (*plaid.LinkToken, error) {
	m.record("CreateLinkToken")
	if m.createLinkTokenFn != nil {
		return m.createLinkTokenFn(ctx, req)
	}
	return nil, errNotMocked
}

func (m *mockPlaidClient) CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error) {
	m.record("CreateSandboxPublicToken")
	if m.createSandboxPublicTokenFn != nil {
		return m.createSandboxPublicTokenFn(ctx, institutionID, products)
	}
	return "", errNotMocked
}

func (m *mockPlaidClient) ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.TokenExchange, error) {
	m.record("ExchangePublicToken")
	if m.exchangePublicTokenFn != nil {
		return m.exchangePublicTokenFn(ctx, publicToken)
	}
	return nil, errNotMocked
}

func (m *mockPlaidClient) GetItem(ctx context.Context, accessToken string) (*plaid.Item, error) {
	m.record("GetItem")
	if m.getItemFn != nil {
		return m.getItemFn(ctx, accessToken)
	}
	return nil, errNotMocked
}

func (m *mockPlaidClient) GetInstitution(ctx context.Context, institutionID string, countryCodes []string) (*plaid.Institution, error) {
	m.record("GetInstitution")
	if m.getInstitutionFn != nil {
		return m.getInstitutionFn(ctx, institutionID, countryCodes)
	}
	return nil, errNotMocked
}

func (m *mockPlaidClient) GetAccounts(ctx context.Context, accessToken string) ([]plaid.Account, error) {
	m.record("GetAccounts")
	if m.getAccountsFn != nil {
		return m.getAccountsFn(ctx, accessToken)
	}
	return nil, errNotMocked
}

func (m *mockPlaidClient) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncPage, error) {
	m.record("SyncTransactions")
	if m.syncTransactionsFn != nil {
		return m.syncTransactionsFn(ctx, accessToken, cursor, count)
	}
	return nil, errNotMocked
}

func (m *mockPlaidClient) RemoveItem(ctx context.Context, accessToken string) error {
	m.record("RemoveItem")
	if m.removeItemFn != nil {
		return m.removeItemFn(ctx, accessToken)
	}
	return errNotMocked
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func providerAccount(id, name string, current float64) plaid.Account {
	return plaid.Account{
		AccountID: id,
		Name:      name,
		Type:      "depository",
		Subtype:   strPtr("checking"),
		Mask:      strPtr("0000"),
		Balances: plaid.Balances{
			Current:         floatPtr(current),
			IsoCurrencyCode: strPtr("USD"),
		},
	}
}

func providerTransaction(id, accountID string, amount float64, date string) plaid.Transaction {
	return plaid.Transaction{
		TransactionID:   id,
		AccountID:       accountID,
		Amount:          amount,
		IsoCurrencyCode: strPtr("USD"),
		Date:            date,
		Name:            "Transaction " + id,
		Category:        []string{"Food and Drink", "Restaurants"},
	}
}
