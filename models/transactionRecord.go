package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/shopspring/decimal"
)

// TransactionRecord is one transaction row, either uploaded for reconciliation
// (IsSystemRecord=false) or authoritative (IsSystemRecord=true).
// Rows are created by batch ingestion and never mutated afterwards.
type TransactionRecord struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	BatchId         string          `gorm:"size:36;index;not null" json:"batch_id"`
	TransactionId   string          `gorm:"size:100;index;not null" json:"transaction_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ReferenceNumber string          `gorm:"size:100;index" json:"reference_number"`
	TransactionDate time.Time       `json:"transaction_date"`
	Description     string          `gorm:"type:text" json:"description"`
	Category        string          `gorm:"size:100" json:"category"`
	RowNumber       int             `json:"row_number"`
	IsSystemRecord  bool            `gorm:"index;not null;default:false" json:"is_system_record"`
	// RawData keeps the original header->cell mapping of the imported row.
	RawData   string    `gorm:"type:text" json:"raw_data"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetTransactionRecord(ctx context.Context, id int) (*TransactionRecord, error) {
	db := config.GetDB()
	var result TransactionRecord

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetBatchRecords(ctx context.Context, batchId string, isSystemRecord bool) ([]*TransactionRecord, error) {
	db := config.GetDB()
	var results []*TransactionRecord

	err := db.WithContext(ctx).
		Where("batch_id = ? AND is_system_record = ?", batchId, isSystemRecord).
		Order("row_number ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
