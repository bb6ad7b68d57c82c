package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/shopspring/decimal"
)

// amountRange returns the inclusive [min, max] band amount*(1±tolerance).
func amountRange(amount decimal.Decimal, tolerance float64) (decimal.Decimal, decimal.Decimal) {
	tol := decimal.NewFromFloat(tolerance)
	min := amount.Mul(decimal.NewFromInt(1).Sub(tol))
	max := amount.Mul(decimal.NewFromInt(1).Add(tol))
	if min.GreaterThan(max) {
		// negative amounts flip the band
		min, max = max, min
	}
	return min, max
}

// FindCandidates returns candidate system records for one uploaded record
// using point queries. Two tiers, first non-empty tier wins:
// exact transaction id + amount, then same reference number with the amount
// inside the tolerance band. An empty result is not an error.
func (e *Engine) FindCandidates(ctx context.Context, record models.TransactionRecord) ([]models.TransactionRecord, error) {
	exact, err := e.store.SystemRecordsByTransaction(ctx, record.BusinessId, record.TransactionId, record.Amount)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}

	min, max := amountRange(record.Amount, e.rules.Tolerance)
	return e.store.SystemRecordsByReference(ctx, record.BusinessId, record.ReferenceNumber, min, max)
}

// matchIndex is the in-memory candidate index a batch run works against,
// built from a single up-front fetch of system records. Bucket order follows
// fetch order, which keeps score tie-breaks deterministic.
type matchIndex struct {
	byTransaction map[string][]models.TransactionRecord
	byReference   map[string][]models.TransactionRecord
}

func newMatchIndex(systemRecords []models.TransactionRecord) *matchIndex {
	ix := &matchIndex{
		byTransaction: make(map[string][]models.TransactionRecord),
		byReference:   make(map[string][]models.TransactionRecord),
	}
	for _, record := range systemRecords {
		ix.byTransaction[record.TransactionId] = append(ix.byTransaction[record.TransactionId], record)
		ix.byReference[record.ReferenceNumber] = append(ix.byReference[record.ReferenceNumber], record)
	}
	return ix
}

// findCandidates applies the same two-tier strategy as FindCandidates, but
// against the in-memory index.
func (ix *matchIndex) findCandidates(record models.TransactionRecord, tolerance float64) []models.TransactionRecord {
	var exact []models.TransactionRecord
	for _, candidate := range ix.byTransaction[record.TransactionId] {
		if candidate.Amount.Equal(record.Amount) {
			exact = append(exact, candidate)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	min, max := amountRange(record.Amount, tolerance)
	var partial []models.TransactionRecord
	for _, candidate := range ix.byReference[record.ReferenceNumber] {
		if candidate.Amount.GreaterThanOrEqual(min) && candidate.Amount.LessThanOrEqual(max) {
			partial = append(partial, candidate)
		}
	}
	return partial
}
