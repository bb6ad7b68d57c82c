package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// ReconciliationBatch is one upload job. Status is owned by the dispatch
// layer (worker + HTTP), never by the matching engine itself.
type ReconciliationBatch struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	BusinessId   string      `gorm:"index;not null" json:"business_id"`
	FileName     string      `gorm:"size:255" json:"file_name"`
	Status       BatchStatus `gorm:"size:20;index;not null" json:"status"`
	TotalRecords int         `gorm:"not null;default:0" json:"total_records"`
	LastError    string      `gorm:"type:text" json:"last_error"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetBatch(ctx context.Context, batchId string) (*ReconciliationBatch, error) {
	db := config.GetDB()
	var batch ReconciliationBatch

	err := db.WithContext(ctx).Where("id = ?", batchId).First(&batch).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &batch, nil
}

func SetBatchStatus(ctx context.Context, batchId string, status BatchStatus, lastError string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&ReconciliationBatch{}).
		Where("id = ?", batchId).
		Updates(map[string]interface{}{"status": status, "last_error": lastError}).Error
}
