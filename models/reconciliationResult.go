package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// FieldDifference is one mismatching field between an uploaded record and the
// system record it was compared against. Variance is set for the amount field
// only, computed as |a-b| / max(a,b).
type FieldDifference struct {
	Field         string   `json:"field"`
	UploadedValue string   `json:"uploaded_value"`
	SystemValue   string   `json:"system_value"`
	Variance      *float64 `json:"variance,omitempty"`
}

// ReconciliationResult is the per-record verdict of one reconciliation run.
// Created exactly once per uploaded record per run. Only the resolution
// fields (Status, SystemRecordId, Notes, IsManualOverride, ResolvedBy,
// ResolvedAt) may change after creation, and only through manual resolution.
type ReconciliationResult struct {
	ID               int         `gorm:"primary_key" json:"id"`
	BusinessId       string      `gorm:"index;not null" json:"business_id"`
	BatchId          string      `gorm:"size:36;index;not null" json:"batch_id"`
	UploadedRecordId int         `gorm:"index;not null" json:"uploaded_record_id"`
	SystemRecordId   *int        `gorm:"index" json:"system_record_id"`
	Status           MatchStatus `gorm:"size:20;index;not null" json:"status"`
	MatchScore       float64     `gorm:"not null;default:0" json:"match_score"`
	// Differences and RuleSnapshot are stored as JSON text, like audit values.
	Differences      string     `gorm:"type:text" json:"differences"`
	RuleSnapshot     string     `gorm:"type:text" json:"rule_snapshot"`
	IsManualOverride bool       `gorm:"not null;default:false" json:"is_manual_override"`
	ResolvedBy       string     `gorm:"size:100" json:"resolved_by"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	Notes            string     `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func GetReconciliationResult(ctx context.Context, id int) (*ReconciliationResult, error) {
	db := config.GetDB()
	var result ReconciliationResult

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

// DeleteBatchResults removes every result of a batch. Used by the dispatch
// layer before rerunning a batch whose previous run did not complete, so a
// rerun never leaves a record with two results.
func DeleteBatchResults(ctx context.Context, batchId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Where("batch_id = ?", batchId).
		Delete(&ReconciliationResult{}).Error
}

func GetBatchResults(ctx context.Context, batchId string) ([]*ReconciliationResult, error) {
	db := config.GetDB()
	var results []*ReconciliationResult

	err := db.WithContext(ctx).
		Where("batch_id = ?", batchId).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
