package workflow

import (
	"math"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/shopspring/decimal"
)

// Field contributions to the match score. The reference number is weighted
// below the exact-tier fields, which caps the maximum achievable score at
// (1 + 1 + 0.8) / 3 ≈ 0.933, below the matched threshold. Stored verdicts
// depend on these exact weights.
const (
	transactionIdContribution = 1.0
	amountFullContribution    = 1.0
	amountHalfContribution    = 0.5
	referenceContribution     = 0.8
	comparedFieldCount        = 3.0
)

var two = decimal.NewFromInt(2)

// scoreAmountVariance is the scorer's relative variance: |a-b| / ((a+b)/2).
// Note the denominator differs from the differ's variance on purpose.
func scoreAmountVariance(a, b decimal.Decimal) float64 {
	diff := a.Sub(b).Abs()
	mean := a.Add(b).Div(two)
	if mean.IsZero() {
		if diff.IsZero() {
			return 0
		}
		return math.Inf(1)
	}
	return diff.Div(mean).Abs().InexactFloat64()
}

// Score computes the [0,1] confidence that candidate is the system record
// uploaded refers to. Contributions are summed over the compared fields
// (transaction id, amount, reference number) and divided by their count.
func (e *Engine) Score(uploaded, candidate models.TransactionRecord) float64 {
	var total float64

	if uploaded.TransactionId == candidate.TransactionId {
		total += transactionIdContribution
	}

	variance := scoreAmountVariance(uploaded.Amount, candidate.Amount)
	tolerance := e.rules.Tolerance
	switch {
	case variance <= tolerance:
		total += amountFullContribution
	case variance <= 2*tolerance:
		total += amountHalfContribution
	}

	if uploaded.ReferenceNumber == candidate.ReferenceNumber {
		total += referenceContribution
	}

	return total / comparedFieldCount
}
