package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finlink/internal/errors"
	"finlink/internal/pagination"
	"finlink/internal/services"
	"finlink/internal/validator"
)

// QueryHandler serves stored accounts, balances and transactions.
type QueryHandler struct {
	queryService services.QueryServicer
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(queryService services.QueryServicer) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

// BalancesQuery filters balances to a comma-separated list of account ids.
type BalancesQuery struct {
	AccountIDs string `form:"accountIds" binding:"omitempty,uuid_list"`
}

// GetAccounts lists the user's accounts
// @Summary     List accounts
// @Description List accounts across all of the user's linked items
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  services.AccountSummary "Accounts"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /accounts [get]
func (h *QueryHandler) GetAccounts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accounts, err := h.queryService.GetUserAccounts(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

// GetBalances returns account balances
// @Summary     Get balances
// @Description Get balances for the user's accounts, optionally filtered by id
// @Tags        accounts
// @Produce     json
// @Security    BearerAuth
// @Param       accountIds query string false "Comma-separated account ids"
// @Success     200 {array}  services.BalanceSummary "Balances"
// @Failure     400 {object} ErrorResponse "Invalid account ids"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /balances [get]
func (h *QueryHandler) GetBalances(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query BalancesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	balances, err := h.queryService.GetAccountBalances(c.Request.Context(), userID, validator.SplitList(query.AccountIDs))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

// GetTransactions pages through stored transactions
// @Summary     List transactions
// @Description List the user's transactions, newest first
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query int false "Page size (default 100, max 500)"
// @Param       offset query int false "Offset"
// @Success     200 {object} pagination.Response[services.TransactionView] "Transactions"
// @Failure     400 {object} ErrorResponse "Invalid pagination"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /transactions [get]
func (h *QueryHandler) GetTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.Request
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.queryService.GetUserTransactions(c.Request.Context(), userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
