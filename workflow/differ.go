package workflow

import (
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/shopspring/decimal"
)

const diffDateLayout = "2006-01-02"

// diffAmountVariance is the differ's relative variance: |a-b| / max(a,b).
// This is a different denominator than the scorer uses; the two conventions
// are kept separate on purpose.
func diffAmountVariance(a, b decimal.Decimal) float64 {
	denominator := decimal.Max(a, b)
	if denominator.IsZero() {
		return 0
	}
	return a.Sub(b).Abs().Div(denominator).InexactFloat64()
}

// Diff lists the fields on which the two records disagree. The amount
// difference additionally carries its relative variance.
func (e *Engine) Diff(uploaded, candidate models.TransactionRecord) []models.FieldDifference {
	var differences []models.FieldDifference

	if uploaded.TransactionId != candidate.TransactionId {
		differences = append(differences, models.FieldDifference{
			Field:         models.FieldTransactionId,
			UploadedValue: uploaded.TransactionId,
			SystemValue:   candidate.TransactionId,
		})
	}

	if !uploaded.Amount.Equal(candidate.Amount) {
		variance := diffAmountVariance(uploaded.Amount, candidate.Amount)
		differences = append(differences, models.FieldDifference{
			Field:         models.FieldAmount,
			UploadedValue: uploaded.Amount.String(),
			SystemValue:   candidate.Amount.String(),
			Variance:      &variance,
		})
	}

	if uploaded.ReferenceNumber != candidate.ReferenceNumber {
		differences = append(differences, models.FieldDifference{
			Field:         models.FieldReferenceNumber,
			UploadedValue: uploaded.ReferenceNumber,
			SystemValue:   candidate.ReferenceNumber,
		})
	}

	// Dates are compared at day granularity, same resolution they are
	// rendered at, so a difference never carries two identical values.
	uploadedDate := uploaded.TransactionDate.Format(diffDateLayout)
	candidateDate := candidate.TransactionDate.Format(diffDateLayout)
	if uploadedDate != candidateDate {
		differences = append(differences, models.FieldDifference{
			Field:         models.FieldTransactionDate,
			UploadedValue: uploadedDate,
			SystemValue:   candidateDate,
		})
	}

	if uploaded.Description != candidate.Description {
		differences = append(differences, models.FieldDifference{
			Field:         models.FieldDescription,
			UploadedValue: uploaded.Description,
			SystemValue:   candidate.Description,
		})
	}

	return differences
}
