package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	apperrors "finlink/internal/errors"
	"finlink/internal/models"
	"finlink/internal/money"
	"finlink/internal/services"
)

// ItemHandler handles linking, account sync and removal of institution items.
type ItemHandler struct {
	itemService  services.ItemServicer
	accountSync  services.AccountSyncer
	auditService services.AuditServicer
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(itemService services.ItemServicer, accountSync services.AccountSyncer, auditService services.AuditServicer) *ItemHandler {
	return &ItemHandler{itemService: itemService, accountSync: accountSync, auditService: auditService}
}

// CreateLinkTokenRequest optionally names an item to open Link in update mode.
type CreateLinkTokenRequest struct {
	ItemID *string `json:"itemId" binding:"omitempty,uuid"`
}

// SandboxPublicTokenRequest selects the sandbox institution to link.
type SandboxPublicTokenRequest struct {
	InstitutionID string `json:"institutionId" binding:"omitempty,institution_id"`
}

// SandboxPublicTokenResponse carries a sandbox public token.
type SandboxPublicTokenResponse struct {
	PublicToken string `json:"publicToken"`
}

// ExchangeRequest carries the public token returned by Link.
type ExchangeRequest struct {
	PublicToken string `json:"publicToken" binding:"required,public_token"`
}

// AccountResponse is a synced account with decimal balances.
type AccountResponse struct {
	ID                string     `json:"id"`
	ItemID            string     `json:"item_id"`
	PlaidAccountID    string     `json:"plaid_account_id"`
	Name              string     `json:"name"`
	OfficialName      *string    `json:"official_name,omitempty"`
	Type              string     `json:"type"`
	Subtype           *string    `json:"subtype,omitempty"`
	Mask              *string    `json:"mask,omitempty"`
	CurrentBalance    *float64   `json:"current_balance"`
	AvailableBalance  *float64   `json:"available_balance"`
	Currency          string     `json:"currency"`
	LastBalanceUpdate *time.Time `json:"last_balance_update,omitempty"`
}

func toAccountResponse(a models.Account, _ int) AccountResponse {
	currency := a.Currency()
	return AccountResponse{
		ID:                a.ID,
		ItemID:            a.ItemID,
		PlaidAccountID:    a.PlaidAccountID,
		Name:              a.Name,
		OfficialName:      a.OfficialName,
		Type:              a.Type,
		Subtype:           a.Subtype,
		Mask:              a.Mask,
		CurrentBalance:    money.FromMinorPtr(a.CurrentBalance, currency),
		AvailableBalance:  money.FromMinorPtr(a.AvailableBalance, currency),
		Currency:          currency,
		LastBalanceUpdate: a.LastBalanceUpdate,
	}
}

// CreateLinkToken handles Link token creation
// @Summary     Create Link token
// @Description Create a Link token; with itemId the token opens Link in update mode
// @Tags        items
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateLinkTokenRequest false "Optional item to update"
// @Success     200 {object} services.LinkToken "Link token"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Item not found"
// @Failure     500 {object} ErrorResponse "Provider error"
// @Router      /link-tokens [post]
func (h *ItemHandler) CreateLinkToken(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateLinkTokenRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondWithError(c, err)
		return
	}

	token, err := h.itemService.CreateLinkToken(c.Request.Context(), userID, req.ItemID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// CreateSandboxPublicToken mints a sandbox public token
// @Summary     Create sandbox public token
// @Description Create a public token without Link (sandbox environment only)
// @Tags        items
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SandboxPublicTokenRequest false "Institution (default ins_109508)"
// @Success     200 {object} SandboxPublicTokenResponse "Public token"
// @Failure     404 {object} ErrorResponse "Not available outside sandbox"
// @Router      /sandbox/public-tokens [post]
func (h *ItemHandler) CreateSandboxPublicToken(c *gin.Context) {
	var req SandboxPublicTokenRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondWithError(c, err)
		return
	}

	token, err := h.itemService.CreateSandboxPublicToken(c.Request.Context(), req.InstitutionID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SandboxPublicTokenResponse{PublicToken: token})
}

// ExchangePublicToken links a new item
// @Summary     Exchange public token
// @Description Exchange a Link public token, store the item and sync its accounts
// @Tags        items
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ExchangeRequest true "Public token"
// @Success     201 {object} services.ExchangeResult "Linked item"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Item already linked"
// @Failure     500 {object} ErrorResponse "Provider error"
// @Router      /token-exchanges [post]
func (h *ItemHandler) ExchangePublicToken(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.itemService.ExchangePublicToken(c.Request.Context(), userID, req.PublicToken)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionLinkItem, "item", result.ItemID, c.ClientIP(),
		map[string]interface{}{"institution_name": result.InstitutionName})
	c.JSON(http.StatusCreated, result)
}

// SyncAccounts refreshes an item's accounts
// @Summary     Sync accounts
// @Description Reconcile the item's accounts and balances with the provider
// @Tags        items
// @Produce     json
// @Security    BearerAuth
// @Param       itemId path string true "Item ID"
// @Success     200 {array}  AccountResponse "Synced accounts"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Item not found"
// @Failure     500 {object} ErrorResponse "Provider error"
// @Router      /items/{itemId}/account-sync [post]
func (h *ItemHandler) SyncAccounts(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	itemID, err := parsePathID(c, "itemId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.itemService.GetAuthorizedItem(ctx, caller, itemID); err != nil {
		respondWithError(c, err)
		return
	}

	accounts, err := h.accountSync.SyncAccounts(ctx, itemID, nil)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(caller.UserID, services.AuditActionSyncAccounts, "item", itemID, c.ClientIP(),
		map[string]interface{}{"accounts": len(accounts)})
	c.JSON(http.StatusOK, lo.Map(accounts, toAccountResponse))
}

// RemoveItem unlinks an item
// @Summary     Remove item
// @Description Revoke the item at the provider and delete it with its accounts and transactions
// @Tags        items
// @Produce     json
// @Security    BearerAuth
// @Param       itemId path string true "Item ID"
// @Success     200 {object} SuccessResponse "Removed"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Item not found"
// @Failure     500 {object} ErrorResponse "Provider error"
// @Router      /items/{itemId} [delete]
func (h *ItemHandler) RemoveItem(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	itemID, err := parsePathID(c, "itemId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.itemService.RemoveItem(c.Request.Context(), caller, itemID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(caller.UserID, services.AuditActionRemoveItem, "item", itemID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
