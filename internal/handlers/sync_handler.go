package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finlink/internal/services"
)

// SyncHandler triggers transaction syncs for the caller or, from the
// pipeline, for any user.
type SyncHandler struct {
	transactionSync services.TransactionSyncer
	auditService    services.AuditServicer
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(transactionSync services.TransactionSyncer, auditService services.AuditServicer) *SyncHandler {
	return &SyncHandler{transactionSync: transactionSync, auditService: auditService}
}

// SyncCountsResponse reports how many deltas a sync applied.
type SyncCountsResponse struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Removed  int `json:"removed"`
}

// Sync triggers recorded in the audit trail.
const (
	triggeredByUser     = "user"
	triggeredByPipeline = "pipeline"
)

func (h *SyncHandler) run(c *gin.Context, userID, triggeredBy string) {
	result, err := h.transactionSync.SyncTransactions(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	counts := SyncCountsResponse{
		Added:    len(result.Added),
		Modified: len(result.Modified),
		Removed:  len(result.Removed),
	}
	h.auditService.Log(userID, services.AuditActionSyncTransactions, "user", userID, c.ClientIP(),
		map[string]interface{}{
			"added":        counts.Added,
			"modified":     counts.Modified,
			"removed":      counts.Removed,
			"triggered_by": triggeredBy,
		})
	c.JSON(http.StatusOK, counts)
}

// SyncTransactions syncs the caller's transactions
// @Summary     Sync transactions
// @Description Pull transaction deltas for every linked item of the user
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} SyncCountsResponse "Applied delta counts"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Provider error"
// @Router      /transaction-syncs [post]
func (h *SyncHandler) SyncTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	h.run(c, userID, triggeredByUser)
}

// PipelineSyncTransactions syncs a user's transactions on behalf of a scheduler
// @Summary     Sync transactions for a user (pipeline)
// @Description Pull transaction deltas for a user's items (pipeline endpoint)
// @Tags        pipeline
// @Produce     json
// @Param       X-API-Key header string true "Pipeline API key"
// @Param       userId    path   string true "User ID"
// @Success     200 {object} SyncCountsResponse "Applied delta counts"
// @Failure     400 {object} ErrorResponse "Invalid user id"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/users/{userId}/transaction-syncs [post]
func (h *SyncHandler) PipelineSyncTransactions(c *gin.Context) {
	userID, err := parsePathID(c, "userId")
	if err != nil {
		respondWithError(c, err)
		return
	}
	h.run(c, userID, triggeredByPipeline)
}
