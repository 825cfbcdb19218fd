package services

import (
	"encoding/json"

	"gorm.io/gorm"

	"finlink/internal/logger"
	"finlink/internal/models"
)

// Audit actions recorded by the handlers.
const (
	AuditActionLinkItem         = "LINK_ITEM"
	AuditActionRemoveItem       = "REMOVE_ITEM"
	AuditActionSyncAccounts     = "SYNC_ACCOUNTS"
	AuditActionSyncTransactions = "SYNC_TRANSACTIONS"
	AuditActionUpdateUser       = "UPDATE_USER"
	AuditActionDeleteUser       = "DELETE_USER"
)

// auditService handles audit log recording.
type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log records an audit event. Errors are logged but never propagate.
func (s *auditService) Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{}) {
	log := logger.Named("audit")

	var changesJSON string
	if changes != nil {
		data, err := json.Marshal(changes)
		if err != nil {
			log.Errorw("failed to marshal audit log changes", "error", err, "action", action)
			changesJSON = "{}"
		} else {
			changesJSON = string(data)
		}
	}

	entry := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      changesJSON,
	}

	if err := s.db.Create(entry).Error; err != nil {
		log.Errorw("failed to create audit log entry",
			"error", err,
			"user_id", userID,
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
		)
	}
}
