package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RecordStore is the engine's read/write access to records and results.
// Reads must be safe to call concurrently across batches.
type RecordStore interface {
	UploadedRecords(ctx context.Context, batchId string) ([]models.TransactionRecord, error)
	SystemRecords(ctx context.Context, businessId string) ([]models.TransactionRecord, error)
	SystemRecordsByTransaction(ctx context.Context, businessId string, transactionId string, amount decimal.Decimal) ([]models.TransactionRecord, error)
	SystemRecordsByReference(ctx context.Context, businessId string, referenceNumber string, minAmount, maxAmount decimal.Decimal) ([]models.TransactionRecord, error)
	DuplicateTransactionCounts(ctx context.Context, batchId string) (map[string]int, error)
	CreateResult(ctx context.Context, result *models.ReconciliationResult) error
	GetResult(ctx context.Context, resultId int) (*models.ReconciliationResult, error)
	SaveResolution(ctx context.Context, result *models.ReconciliationResult) error
}

// AuditAppender is the append-only log the engine writes to. The contract
// has no update or delete.
type AuditAppender interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
}

// Engine is the reconciliation matching engine. It holds no mutable state
// beyond the rule configuration it was constructed with; all I/O goes through
// the injected store and audit log. One Engine serves any number of batches.
type Engine struct {
	store  RecordStore
	audit  AuditAppender
	rules  models.MatchRuleConfig
	logger *logrus.Logger
}

func NewEngine(store RecordStore, audit AuditAppender, rules models.MatchRuleConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		store:  store,
		audit:  audit,
		rules:  rules,
		logger: logger,
	}
}

// Rules returns the immutable rule configuration the engine runs under.
func (e *Engine) Rules() models.MatchRuleConfig {
	return e.rules
}
