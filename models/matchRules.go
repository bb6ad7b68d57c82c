package models

// Field names referenced by match rules. These match the TransactionRecord
// JSON field names so rule snapshots stay readable next to raw row data.
const (
	FieldTransactionId   = "transaction_id"
	FieldAmount          = "amount"
	FieldReferenceNumber = "reference_number"
	FieldTransactionDate = "transaction_date"
	FieldDescription     = "description"
)

// MatchRuleConfig is the rule set a reconciliation run operates under.
// Every ReconciliationResult snapshots the config in force at creation time,
// so stored verdicts stay reproducible when rules change later.
type MatchRuleConfig struct {
	Tolerance          float64  `json:"tolerance"`
	ExactMatchFields   []string `json:"exact_match_fields"`
	PartialMatchFields []string `json:"partial_match_fields"`
}

func DefaultMatchRules(tolerance float64) MatchRuleConfig {
	return MatchRuleConfig{
		Tolerance:          tolerance,
		ExactMatchFields:   []string{FieldTransactionId, FieldAmount},
		PartialMatchFields: []string{FieldReferenceNumber},
	}
}
