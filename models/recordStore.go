package models

import (
	"context"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormRecordStore is the MySQL-backed record store the engine is constructed
// with. It is read-only for transaction records; the only writes are new
// reconciliation results and the resolution fields of an existing result.
type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

func (s *GormRecordStore) UploadedRecords(ctx context.Context, batchId string) ([]TransactionRecord, error) {
	var records []TransactionRecord
	err := s.db.WithContext(ctx).
		Where("batch_id = ? AND is_system_record = ?", batchId, false).
		Order("row_number ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormRecordStore) SystemRecords(ctx context.Context, businessId string) ([]TransactionRecord, error) {
	var records []TransactionRecord
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND is_system_record = ?", businessId, true).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormRecordStore) SystemRecordsByTransaction(ctx context.Context, businessId string, transactionId string, amount decimal.Decimal) ([]TransactionRecord, error) {
	var records []TransactionRecord
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND is_system_record = ? AND transaction_id = ? AND amount = ?",
			businessId, true, transactionId, amount).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormRecordStore) SystemRecordsByReference(ctx context.Context, businessId string, referenceNumber string, minAmount, maxAmount decimal.Decimal) ([]TransactionRecord, error) {
	var records []TransactionRecord
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND is_system_record = ? AND reference_number = ? AND amount BETWEEN ? AND ?",
			businessId, true, referenceNumber, minAmount, maxAmount).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormRecordStore) DuplicateTransactionCounts(ctx context.Context, batchId string) (map[string]int, error) {
	type group struct {
		TransactionId string
		Cnt           int
	}
	var groups []group
	err := s.db.WithContext(ctx).Model(&TransactionRecord{}).
		Select("transaction_id, COUNT(*) AS cnt").
		Where("batch_id = ? AND is_system_record = ?", batchId, false).
		Group("transaction_id").
		Having("COUNT(*) > 1").
		Scan(&groups).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(groups))
	for _, g := range groups {
		counts[g.TransactionId] = g.Cnt
	}
	return counts, nil
}

func (s *GormRecordStore) CreateResult(ctx context.Context, result *ReconciliationResult) error {
	return s.db.WithContext(ctx).Create(result).Error
}

func (s *GormRecordStore) GetResult(ctx context.Context, resultId int) (*ReconciliationResult, error) {
	var result ReconciliationResult
	err := s.db.WithContext(ctx).First(&result, resultId).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// SaveResolution persists the resolution fields only. All other columns of a
// reconciliation result are immutable after creation.
func (s *GormRecordStore) SaveResolution(ctx context.Context, result *ReconciliationResult) error {
	return s.db.WithContext(ctx).Model(&ReconciliationResult{}).
		Where("id = ?", result.ID).
		Updates(map[string]interface{}{
			"status":             result.Status,
			"system_record_id":   result.SystemRecordId,
			"is_manual_override": result.IsManualOverride,
			"resolved_by":        result.ResolvedBy,
			"resolved_at":        result.ResolvedAt,
			"notes":              result.Notes,
		}).Error
}
