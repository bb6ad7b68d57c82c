package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLogEntry records one action taken against an entity. Entries are
// append-only: the store type below exposes no update or delete at all.
type AuditLogEntry struct {
	ID            int         `gorm:"primary_key" json:"id"`
	BusinessId    string      `gorm:"index;not null" json:"business_id"`
	EntityType    string      `gorm:"size:50;index;not null" json:"entity_type"`
	EntityId      int         `gorm:"index;not null" json:"entity_id"`
	Action        AuditAction `gorm:"size:20;not null" json:"action"`
	ActorId       string      `gorm:"size:100;not null" json:"actor_id"`
	Source        AuditSource `gorm:"size:10;not null" json:"source"`
	OldValue      string      `gorm:"type:text" json:"old_value"`
	NewValue      string      `gorm:"type:text" json:"new_value"`
	Changes       string      `gorm:"type:text" json:"changes"`
	CorrelationId string      `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// AuditTrail is the only way to touch audit_log_entries. Immutability is
// structural: Append and Query are the whole contract.
type AuditTrail struct {
	db *gorm.DB
}

func NewAuditTrail(db *gorm.DB) *AuditTrail {
	return &AuditTrail{db: db}
}

func (t *AuditTrail) Append(ctx context.Context, entry *AuditLogEntry) error {
	if entry.CorrelationId == "" {
		entry.CorrelationId = correlationIdFromContextOrNew(ctx)
	}
	if entry.BusinessId == "" {
		if businessId, ok := utils.GetBusinessIdFromContext(ctx); ok {
			entry.BusinessId = businessId
		}
	}
	return t.db.WithContext(ctx).Create(entry).Error
}

func (t *AuditTrail) Query(ctx context.Context, entityType string, entityId int) ([]*AuditLogEntry, error) {
	var results []*AuditLogEntry
	err := t.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityId).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
