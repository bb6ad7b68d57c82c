package workflow

import (
	"context"
	"fmt"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NOTE: These tests are intentionally DB-free. The engine only sees the
// RecordStore and AuditAppender contracts, so everything below runs against
// in-memory fakes. Full DB integration tests should run in an environment
// with MySQL available.

type fakeStore struct {
	uploaded   map[string][]models.TransactionRecord // by batch id
	system     map[string][]models.TransactionRecord // by business id
	duplicates map[string]map[string]int             // batch id -> transaction id -> count
	results    map[int]*models.ReconciliationResult
	nextID     int

	createCalls  int
	failCreateAt int // fail the Nth CreateResult, 1-based; 0 means never
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uploaded:   map[string][]models.TransactionRecord{},
		system:     map[string][]models.TransactionRecord{},
		duplicates: map[string]map[string]int{},
		results:    map[int]*models.ReconciliationResult{},
	}
}

func (s *fakeStore) UploadedRecords(ctx context.Context, batchId string) ([]models.TransactionRecord, error) {
	return s.uploaded[batchId], nil
}

func (s *fakeStore) SystemRecords(ctx context.Context, businessId string) ([]models.TransactionRecord, error) {
	return s.system[businessId], nil
}

func (s *fakeStore) SystemRecordsByTransaction(ctx context.Context, businessId string, transactionId string, amount decimal.Decimal) ([]models.TransactionRecord, error) {
	var out []models.TransactionRecord
	for _, r := range s.system[businessId] {
		if r.TransactionId == transactionId && r.Amount.Equal(amount) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) SystemRecordsByReference(ctx context.Context, businessId string, referenceNumber string, minAmount, maxAmount decimal.Decimal) ([]models.TransactionRecord, error) {
	var out []models.TransactionRecord
	for _, r := range s.system[businessId] {
		if r.ReferenceNumber == referenceNumber &&
			r.Amount.GreaterThanOrEqual(minAmount) && r.Amount.LessThanOrEqual(maxAmount) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) DuplicateTransactionCounts(ctx context.Context, batchId string) (map[string]int, error) {
	counts := map[string]int{}
	for txnId, n := range s.duplicates[batchId] {
		if n > 1 {
			counts[txnId] = n
		}
	}
	return counts, nil
}

func (s *fakeStore) CreateResult(ctx context.Context, result *models.ReconciliationResult) error {
	s.createCalls++
	if s.failCreateAt > 0 && s.createCalls == s.failCreateAt {
		return fmt.Errorf("forced create failure")
	}
	s.nextID++
	result.ID = s.nextID
	saved := *result
	s.results[result.ID] = &saved
	return nil
}

func (s *fakeStore) GetResult(ctx context.Context, resultId int) (*models.ReconciliationResult, error) {
	r, ok := s.results[resultId]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *fakeStore) SaveResolution(ctx context.Context, result *models.ReconciliationResult) error {
	saved := *result
	s.results[result.ID] = &saved
	return nil
}

type fakeAudit struct {
	entries []models.AuditLogEntry
	err     error
}

func (a *fakeAudit) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, *entry)
	return nil
}

func newTestEngine(store *fakeStore, audit *fakeAudit, tolerance float64) *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEngine(store, audit, models.DefaultMatchRules(tolerance), logger)
}

func record(id int, businessId, batchId, txnId string, amount string, reference string) models.TransactionRecord {
	return models.TransactionRecord{
		ID:              id,
		BusinessId:      businessId,
		BatchId:         batchId,
		TransactionId:   txnId,
		Amount:          decimal.RequireFromString(amount),
		ReferenceNumber: reference,
		TransactionDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Description:     "wire transfer",
	}
}
