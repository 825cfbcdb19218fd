package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "finlink/internal/errors"
	"finlink/internal/middleware"
	"finlink/internal/models"
	"finlink/internal/services"
)

func threeDeltas(context.Context, string) (*services.SyncResult, error) {
	return &services.SyncResult{
		Added:    []models.Transaction{{}, {}},
		Modified: []models.Transaction{{}},
		Removed:  []string{"a", "b", "c"},
	}, nil
}

func TestSyncHandler_SyncTransactions(t *testing.T) {
	t.Run("returns delta counts", func(t *testing.T) {
		var gotUser string
		syncer := &mockTransactionSyncer{
			syncTransactionsFn: func(ctx context.Context, userID string) (*services.SyncResult, error) {
				gotUser = userID
				return threeDeltas(ctx, userID)
			},
		}
		audit := &mockAuditService{}
		handler := NewSyncHandler(syncer, audit)
		r := gin.New()
		r.POST("/transaction-syncs", injectUserID(testUserID), handler.SyncTransactions)

		rec := doRequest(r, "POST", "/transaction-syncs", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if result["added"] != float64(2) || result["modified"] != float64(1) || result["removed"] != float64(3) {
			t.Errorf("unexpected counts %v", result)
		}
		if gotUser != testUserID {
			t.Errorf("expected sync for %s, got %q", testUserID, gotUser)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != services.AuditActionSyncTransactions {
			t.Fatalf("expected SYNC_TRANSACTIONS audit entry, got %+v", audit.entries)
		}
		if audit.entries[0].changes["triggered_by"] != "user" {
			t.Errorf("expected triggered_by user, got %v", audit.entries[0].changes["triggered_by"])
		}
	})

	t.Run("returns provider error", func(t *testing.T) {
		syncer := &mockTransactionSyncer{
			syncTransactionsFn: func(context.Context, string) (*services.SyncResult, error) {
				return nil, apperrors.WithMessage(apperrors.ErrProvider, "the login details of this item have changed")
			},
		}
		r := gin.New()
		r.POST("/transaction-syncs", injectUserID(testUserID), NewSyncHandler(syncer, &mockAuditService{}).SyncTransactions)

		rec := doRequest(r, "POST", "/transaction-syncs", "")

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "PROVIDER_ERROR")
	})
}

func TestSyncHandler_PipelineSyncTransactions(t *testing.T) {
	setupWithAudit := func(syncer services.TransactionSyncer, audit *mockAuditService) *gin.Engine {
		r := gin.New()
		pipeline := r.Group("/pipeline", middleware.PipelineAuthMiddleware("secret-key"))
		pipeline.POST("/users/:userId/transaction-syncs", NewSyncHandler(syncer, audit).PipelineSyncTransactions)
		return r
	}
	setup := func(syncer services.TransactionSyncer) *gin.Engine {
		return setupWithAudit(syncer, &mockAuditService{})
	}
	send := func(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, strings.NewReader(""))
		if key != "" {
			req.Header.Set(middleware.APIKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("syncs the named user with a valid key", func(t *testing.T) {
		var gotUser string
		syncer := &mockTransactionSyncer{
			syncTransactionsFn: func(ctx context.Context, userID string) (*services.SyncResult, error) {
				gotUser = userID
				return threeDeltas(ctx, userID)
			},
		}

		rec := send(setup(syncer), "/pipeline/users/"+otherUserID+"/transaction-syncs", "secret-key")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotUser != otherUserID {
			t.Errorf("expected sync for %s, got %q", otherUserID, gotUser)
		}
	})

	t.Run("records the pipeline as the trigger", func(t *testing.T) {
		audit := &mockAuditService{}
		rec := send(setupWithAudit(&mockTransactionSyncer{syncTransactionsFn: threeDeltas}, audit),
			"/pipeline/users/"+otherUserID+"/transaction-syncs", "secret-key")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(audit.entries) != 1 {
			t.Fatalf("expected one audit entry, got %+v", audit.entries)
		}
		entry := audit.entries[0]
		if entry.userID != otherUserID || entry.resourceID != otherUserID {
			t.Errorf("expected entry for %s, got %+v", otherUserID, entry)
		}
		if entry.changes["triggered_by"] != "pipeline" {
			t.Errorf("expected triggered_by pipeline, got %v", entry.changes["triggered_by"])
		}
	})

	t.Run("returns 401 without key", func(t *testing.T) {
		rec := send(setup(&mockTransactionSyncer{}), "/pipeline/users/"+otherUserID+"/transaction-syncs", "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on invalid user id", func(t *testing.T) {
		rec := send(setup(&mockTransactionSyncer{}), "/pipeline/users/7/transaction-syncs", "secret-key")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
