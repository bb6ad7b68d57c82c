package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

const auditEntityReconciliationResult = "ReconciliationResult"

// BatchSummary is what one reconciliation run produced, by verdict.
type BatchSummary struct {
	BatchId          string `json:"batch_id"`
	Total            int    `json:"total"`
	Matched          int    `json:"matched"`
	PartiallyMatched int    `json:"partially_matched"`
	NotMatched       int    `json:"not_matched"`
	Duplicate        int    `json:"duplicate"`
}

func (s *BatchSummary) count(status models.MatchStatus) {
	switch status {
	case models.MatchStatusMatched:
		s.Matched++
	case models.MatchStatusPartiallyMatched:
		s.PartiallyMatched++
	case models.MatchStatusNotMatched:
		s.NotMatched++
	case models.MatchStatusDuplicate:
		s.Duplicate++
	}
}

// reconcileOutcome is the audit NewValue payload of one reconcile verdict.
type reconcileOutcome struct {
	Status         models.MatchStatus `json:"status"`
	MatchScore     float64            `json:"match_score"`
	SystemRecordId *int               `json:"system_record_id"`
}

// ReconcileBatch runs the full pipeline for one upload batch: duplicate
// detection, candidate matching, scoring, diffing, classification, result
// persistence and audit capture, one result per uploaded record.
//
// The run is not atomic: a failure partway through leaves the results already
// persisted in place and aborts the rest. It is also not idempotent; callers
// must guard against double dispatch. At-most-one concurrent call per batch
// is the dispatch layer's responsibility.
func (e *Engine) ReconcileBatch(ctx context.Context, batchId string, actorId string) (*BatchSummary, error) {
	records, err := e.store.UploadedRecords(ctx, batchId)
	if err != nil {
		config.LogError(e.logger, "ReconciliationWorkflow.go", "ReconcileBatch", "Querying uploaded records", batchId, err)
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: batch %s", utils.ErrorNoRecords, batchId)
	}

	duplicates, err := e.FindDuplicates(ctx, batchId)
	if err != nil {
		config.LogError(e.logger, "ReconciliationWorkflow.go", "ReconcileBatch", "Counting duplicate transaction ids", batchId, err)
		return nil, err
	}

	// One up-front fetch instead of point queries per record. All uploaded
	// records of a batch belong to one business.
	systemRecords, err := e.store.SystemRecords(ctx, records[0].BusinessId)
	if err != nil {
		config.LogError(e.logger, "ReconciliationWorkflow.go", "ReconcileBatch", "Querying system records", records[0].BusinessId, err)
		return nil, err
	}
	index := newMatchIndex(systemRecords)

	ruleSnapshot, err := utils.MarshalToJSON(e.rules)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{BatchId: batchId}
	for _, record := range records {
		duplicateCount := duplicates[record.TransactionId]
		if duplicateCount == 0 {
			duplicateCount = 1
		}

		candidates := index.findCandidates(record, e.rules.Tolerance)

		var bestMatch *models.TransactionRecord
		bestScore := 0.0
		for i := range candidates {
			score := e.Score(record, candidates[i])
			// strict comparison keeps the earliest candidate on ties
			if bestMatch == nil || score > bestScore {
				bestMatch = &candidates[i]
				bestScore = score
			}
		}

		var differences []models.FieldDifference
		var systemRecordId *int
		if bestMatch != nil {
			differences = e.Diff(record, *bestMatch)
			id := bestMatch.ID
			systemRecordId = &id
		}

		status := Classify(bestScore, duplicateCount)

		differencesJSON, err := utils.MarshalToJSON(differences)
		if err != nil {
			return nil, err
		}

		result := models.ReconciliationResult{
			BusinessId:       record.BusinessId,
			BatchId:          batchId,
			UploadedRecordId: record.ID,
			SystemRecordId:   systemRecordId,
			Status:           status,
			MatchScore:       bestScore,
			Differences:      differencesJSON,
			RuleSnapshot:     ruleSnapshot,
		}
		if err := e.store.CreateResult(ctx, &result); err != nil {
			config.LogError(e.logger, "ReconciliationWorkflow.go", "ReconcileBatch", "Creating reconciliation result", record.ID, err)
			return nil, fmt.Errorf("%w: create result for record %d: %v", utils.ErrorPersistenceFailure, record.ID, err)
		}

		newValue, err := utils.MarshalToJSON(reconcileOutcome{
			Status:         status,
			MatchScore:     bestScore,
			SystemRecordId: systemRecordId,
		})
		if err != nil {
			return nil, err
		}
		entry := models.AuditLogEntry{
			BusinessId: record.BusinessId,
			EntityType: auditEntityReconciliationResult,
			EntityId:   result.ID,
			Action:     models.AuditActionReconcile,
			ActorId:    actorId,
			Source:     models.AuditSourceSystem,
			NewValue:   newValue,
		}
		if err := e.audit.Append(ctx, &entry); err != nil {
			config.LogError(e.logger, "ReconciliationWorkflow.go", "ReconcileBatch", "Appending audit entry", result.ID, err)
			return nil, fmt.Errorf("%w: append audit entry for result %d: %v", utils.ErrorPersistenceFailure, result.ID, err)
		}

		summary.count(status)
	}
	summary.Total = len(records)

	return summary, nil
}
