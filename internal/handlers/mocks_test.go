package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"finlink/internal/middleware"
	"finlink/internal/models"
	"finlink/internal/pagination"
	"finlink/internal/services"
	"finlink/internal/validator"
)

const (
	testUserID  = "0190a6d0-0000-7000-8000-000000000001"
	otherUserID = "0190a6d0-0000-7000-8000-000000000002"
	testItemID  = "0190a6d0-0000-7000-8000-0000000000a1"
)

// --- mock services ---

type mockUserService struct {
	createUserFn            func(email, password, firstName, lastName string) (*models.User, error)
	getUserByEmailFn        func(email string) (*models.User, error)
	getUserByIDFn           func(id string) (*models.User, error)
	listUsersFn             func(page pagination.Request) (*pagination.Response[models.User], error)
	updateUserFn            func(id string, update services.UserUpdate) (*models.User, error)
	deleteUserFn            func(id string) error
	verifyPasswordFn        func(user *models.User, password string) bool
	attemptLoginFn          func(email, password string) (*models.User, error)
	storeRefreshTokenHashFn func(userID, tokenHash string) error
	getRefreshTokenHashFn   func(userID string) (string, error)
}

func (m *mockUserService) CreateUser(email, password, firstName, lastName string) (*models.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(email, password, firstName, lastName)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByEmail(email string) (*models.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(email)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByID(id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{Base: models.Base{ID: id}}, nil
}

func (m *mockUserService) ListUsers(page pagination.Request) (*pagination.Response[models.User], error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(page)
	}
	page.Defaults()
	resp := pagination.NewResponse([]models.User{}, page, 0)
	return &resp, nil
}

func (m *mockUserService) UpdateUser(id string, update services.UserUpdate) (*models.User, error) {
	if m.updateUserFn != nil {
		return m.updateUserFn(id, update)
	}
	return &models.User{Base: models.Base{ID: id}}, nil
}

func (m *mockUserService) DeleteUser(id string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(id)
	}
	return nil
}

func (m *mockUserService) VerifyPassword(user *models.User, password string) bool {
	if m.verifyPasswordFn != nil {
		return m.verifyPasswordFn(user, password)
	}
	return true
}

func (m *mockUserService) AttemptLogin(email, password string) (*models.User, error) {
	if m.attemptLoginFn != nil {
		return m.attemptLoginFn(email, password)
	}
	return &models.User{}, nil
}

func (m *mockUserService) StoreRefreshTokenHash(userID, tokenHash string) error {
	if m.storeRefreshTokenHashFn != nil {
		return m.storeRefreshTokenHashFn(userID, tokenHash)
	}
	return nil
}

func (m *mockUserService) GetRefreshTokenHash(userID string) (string, error) {
	if m.getRefreshTokenHashFn != nil {
		return m.getRefreshTokenHashFn(userID)
	}
	return "", nil
}

type mockItemService struct {
	createLinkTokenFn          func(ctx context.Context, userID string, itemID *string) (*services.LinkToken, error)
	createSandboxPublicTokenFn func(ctx context.Context, institutionID string) (string, error)
	exchangePublicTokenFn      func(ctx context.Context, userID, publicToken string) (*services.ExchangeResult, error)
	getAuthorizedItemFn        func(ctx context.Context, caller services.Caller, itemID string) (*models.LinkedItem, error)
	removeItemFn               func(ctx context.Context, caller services.Caller, itemID string) error
}

func (m *mockItemService) CreateLinkToken(ctx context.Context, userID string, itemID *string) (*services.LinkToken, error) {
	if m.createLinkTokenFn != nil {
		return m.createLinkTokenFn(ctx, userID, itemID)
	}
	return &services.LinkToken{}, nil
}

func (m *mockItemService) CreateSandboxPublicToken(ctx context.Context, institutionID string) (string, error) {
	if m.createSandboxPublicTokenFn != nil {
		return m.createSandboxPublicTokenFn(ctx, institutionID)
	}
	return "", nil
}

func (m *mockItemService) ExchangePublicToken(ctx context.Context, userID, publicToken string) (*services.ExchangeResult, error) {
	if m.exchangePublicTokenFn != nil {
		return m.exchangePublicTokenFn(ctx, userID, publicToken)
	}
	return &services.ExchangeResult{}, nil
}

func (m *mockItemService) GetAuthorizedItem(ctx context.Context, caller services.Caller, itemID string) (*models.LinkedItem, error) {
	if m.getAuthorizedItemFn != nil {
		return m.getAuthorizedItemFn(ctx, caller, itemID)
	}
	return &models.LinkedItem{Base: models.Base{ID: itemID}, UserID: caller.UserID}, nil
}

func (m *mockItemService) RemoveItem(ctx context.Context, caller services.Caller, itemID string) error {
	if m.removeItemFn != nil {
		return m.removeItemFn(ctx, caller, itemID)
	}
	return nil
}

type mockAccountSyncer struct {
	syncAccountsFn func(ctx context.Context, itemID string, accessToken *string) ([]models.Account, error)
}

func (m *mockAccountSyncer) SyncAccounts(ctx context.Context, itemID string, accessToken *string) ([]models.Account, error) {
	if m.syncAccountsFn != nil {
		return m.syncAccountsFn(ctx, itemID, accessToken)
	}
	return []models.Account{}, nil
}

type mockTransactionSyncer struct {
	syncTransactionsFn func(ctx context.Context, userID string) (*services.SyncResult, error)
}

func (m *mockTransactionSyncer) SyncTransactions(ctx context.Context, userID string) (*services.SyncResult, error) {
	if m.syncTransactionsFn != nil {
		return m.syncTransactionsFn(ctx, userID)
	}
	return &services.SyncResult{}, nil
}

type mockQueryService struct {
	getUserAccountsFn     func(ctx context.Context, userID string) ([]services.AccountSummary, error)
	getAccountBalancesFn  func(ctx context.Context, userID string, accountIDs []string) ([]services.BalanceSummary, error)
	getUserTransactionsFn func(ctx context.Context, userID string, page pagination.Request) (*pagination.Response[services.TransactionView], error)
}

func (m *mockQueryService) GetUserAccounts(ctx context.Context, userID string) ([]services.AccountSummary, error) {
	if m.getUserAccountsFn != nil {
		return m.getUserAccountsFn(ctx, userID)
	}
	return []services.AccountSummary{}, nil
}

func (m *mockQueryService) GetAccountBalances(ctx context.Context, userID string, accountIDs []string) ([]services.BalanceSummary, error) {
	if m.getAccountBalancesFn != nil {
		return m.getAccountBalancesFn(ctx, userID, accountIDs)
	}
	return []services.BalanceSummary{}, nil
}

func (m *mockQueryService) GetUserTransactions(ctx context.Context, userID string, page pagination.Request) (*pagination.Response[services.TransactionView], error) {
	if m.getUserTransactionsFn != nil {
		return m.getUserTransactionsFn(ctx, userID, page)
	}
	resp := pagination.NewResponse([]services.TransactionView{}, page, 0)
	return &resp, nil
}

type auditEntry struct {
	userID, action, resourceType, resourceID string
	changes                                  map[string]interface{}
}

type mockAuditService struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (m *mockAuditService) Log(userID, action, resourceType, resourceID, _ string, changes map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, auditEntry{userID, action, resourceType, resourceID, changes})
}

// verify interface compliance
var (
	_ services.UserServicer      = (*mockUserService)(nil)
	_ services.ItemServicer      = (*mockItemService)(nil)
	_ services.AccountSyncer     = (*mockAccountSyncer)(nil)
	_ services.TransactionSyncer = (*mockTransactionSyncer)(nil)
	_ services.QueryServicer     = (*mockQueryService)(nil)
	_ services.AuditServicer     = (*mockAuditService)(nil)
)

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectUser(userID string, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextRole, role)
		c.Next()
	}
}

func injectUserID(userID string) gin.HandlerFunc {
	return injectUser(userID, models.RoleUser)
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func parseJSONArray(t *testing.T, rec *httptest.ResponseRecorder) []interface{} {
	t.Helper()
	var result []interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON array: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}
