package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

func TestReconcileBatch_ExactMatchIsPartiallyMatched(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	store.uploaded["batch-1"] = []models.TransactionRecord{
		record(1, "biz-1", "batch-1", "TXN-100", "250.00", "INV-77"),
	}
	store.system["biz-1"] = []models.TransactionRecord{
		record(50, "biz-1", "sys", "TXN-100", "250.00", "INV-77"),
	}
	e := newTestEngine(store, audit, 0.02)

	summary, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-1")
	if err != nil {
		t.Fatalf("ReconcileBatch: %v", err)
	}
	if summary.Total != 1 || summary.PartiallyMatched != 1 || summary.Matched != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	result := store.results[1]
	if result == nil {
		t.Fatalf("no result persisted")
	}
	if result.Status != models.MatchStatusPartiallyMatched {
		t.Fatalf("status = %s, want %s", result.Status, models.MatchStatusPartiallyMatched)
	}
	// Agreement on every compared field still caps out below the matched
	// threshold under the 1 + 1 + 0.8 weights.
	if result.MatchScore >= MatchedThreshold {
		t.Fatalf("score %v must stay below %v", result.MatchScore, MatchedThreshold)
	}
	if result.SystemRecordId == nil || *result.SystemRecordId != 50 {
		t.Fatalf("system record id = %v, want 50", result.SystemRecordId)
	}
	if !strings.Contains(result.RuleSnapshot, `"tolerance":0.02`) {
		t.Fatalf("rule snapshot = %s", result.RuleSnapshot)
	}
}

func TestReconcileBatch_NoCandidates(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	store.uploaded["batch-1"] = []models.TransactionRecord{
		record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1"),
	}
	e := newTestEngine(store, audit, 0.02)

	summary, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-1")
	if err != nil {
		t.Fatalf("ReconcileBatch: %v", err)
	}
	if summary.NotMatched != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	result := store.results[1]
	if result.Status != models.MatchStatusNotMatched {
		t.Fatalf("status = %s", result.Status)
	}
	if result.MatchScore != 0 {
		t.Fatalf("score = %v, want 0", result.MatchScore)
	}
	if result.SystemRecordId != nil {
		t.Fatalf("system record id = %v, want nil", *result.SystemRecordId)
	}
}

func TestReconcileBatch_DuplicateTransactionIds(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	store.uploaded["batch-1"] = []models.TransactionRecord{
		record(1, "biz-1", "batch-1", "T9", "100", "REF-1"),
		record(2, "biz-1", "batch-1", "T9", "100", "REF-1"),
	}
	// A perfect system-side counterpart does not rescue a duplicate.
	store.system["biz-1"] = []models.TransactionRecord{
		record(50, "biz-1", "sys", "T9", "100", "REF-1"),
	}
	store.duplicates["batch-1"] = map[string]int{"T9": 2}
	e := newTestEngine(store, audit, 0.02)

	summary, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-1")
	if err != nil {
		t.Fatalf("ReconcileBatch: %v", err)
	}
	if summary.Duplicate != 2 {
		t.Fatalf("summary = %+v, want both records duplicate", summary)
	}
	for id := 1; id <= 2; id++ {
		if store.results[id].Status != models.MatchStatusDuplicate {
			t.Fatalf("result %d status = %s", id, store.results[id].Status)
		}
	}
}

func TestReconcileBatch_TieBreakKeepsEarliestCandidate(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	store.uploaded["batch-1"] = []models.TransactionRecord{
		record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1"),
	}
	// Two indistinguishable exact-tier candidates; fetch order decides.
	store.system["biz-1"] = []models.TransactionRecord{
		record(50, "biz-1", "sys", "TXN-1", "100", "REF-1"),
		record(51, "biz-1", "sys", "TXN-1", "100", "REF-1"),
	}
	e := newTestEngine(store, audit, 0.02)

	if _, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-1"); err != nil {
		t.Fatalf("ReconcileBatch: %v", err)
	}
	result := store.results[1]
	if result.SystemRecordId == nil || *result.SystemRecordId != 50 {
		t.Fatalf("system record id = %v, want the earliest candidate 50", result.SystemRecordId)
	}
}

func TestReconcileBatch_EmptyBatch(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeAudit{}, 0.02)

	_, err := e.ReconcileBatch(context.Background(), "batch-missing", "actor-1")
	if !errors.Is(err, utils.ErrorNoRecords) {
		t.Fatalf("err = %v, want ErrorNoRecords", err)
	}
}

func TestReconcileBatch_PartialFailureKeepsEarlierResults(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	store.uploaded["batch-1"] = []models.TransactionRecord{
		record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1"),
		record(2, "biz-1", "batch-1", "TXN-2", "200", "REF-2"),
		record(3, "biz-1", "batch-1", "TXN-3", "300", "REF-3"),
	}
	store.failCreateAt = 2
	e := newTestEngine(store, audit, 0.02)

	_, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-1")
	if !errors.Is(err, utils.ErrorPersistenceFailure) {
		t.Fatalf("err = %v, want ErrorPersistenceFailure", err)
	}
	// The run is not atomic: the first result stays, the third was never
	// attempted.
	if len(store.results) != 1 {
		t.Fatalf("persisted results = %d, want 1", len(store.results))
	}
	if store.createCalls != 2 {
		t.Fatalf("create calls = %d, want 2", store.createCalls)
	}
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
}

func TestReconcileBatch_RerunAfterFailureKeepsOneResultPerRecord(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	store.uploaded["batch-1"] = []models.TransactionRecord{
		record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1"),
		record(2, "biz-1", "batch-1", "TXN-2", "200", "REF-2"),
	}
	store.failCreateAt = 2
	e := newTestEngine(store, audit, 0.02)

	_, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-1")
	if !errors.Is(err, utils.ErrorPersistenceFailure) {
		t.Fatalf("err = %v, want ErrorPersistenceFailure", err)
	}
	if len(store.results) != 1 {
		t.Fatalf("persisted results after failed run = %d, want 1", len(store.results))
	}

	// The dispatch layer clears a failed batch's results before redelivery
	// reruns it; without that, the record persisted above would end the
	// rerun with two results.
	for id := range store.results {
		delete(store.results, id)
	}
	store.failCreateAt = 0

	summary, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-1")
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if summary.Total != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	perRecord := map[int]int{}
	for _, result := range store.results {
		perRecord[result.UploadedRecordId]++
	}
	if len(perRecord) != 2 {
		t.Fatalf("results cover %d records, want 2", len(perRecord))
	}
	for recordId, n := range perRecord {
		if n != 1 {
			t.Fatalf("record %d has %d results, want exactly 1", recordId, n)
		}
	}
}

func TestReconcileBatch_AuditEntryPerRecord(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	store.uploaded["batch-1"] = []models.TransactionRecord{
		record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1"),
		record(2, "biz-1", "batch-1", "TXN-2", "200", "REF-2"),
	}
	store.system["biz-1"] = []models.TransactionRecord{
		record(50, "biz-1", "sys", "TXN-1", "100", "REF-1"),
	}
	e := newTestEngine(store, audit, 0.02)

	if _, err := e.ReconcileBatch(context.Background(), "batch-1", "actor-7"); err != nil {
		t.Fatalf("ReconcileBatch: %v", err)
	}
	if len(audit.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(audit.entries))
	}
	for _, entry := range audit.entries {
		if entry.Action != models.AuditActionReconcile {
			t.Fatalf("action = %s", entry.Action)
		}
		if entry.Source != models.AuditSourceSystem {
			t.Fatalf("source = %s", entry.Source)
		}
		if entry.ActorId != "actor-7" {
			t.Fatalf("actor = %s", entry.ActorId)
		}
		if entry.EntityType != auditEntityReconciliationResult || entry.EntityId == 0 {
			t.Fatalf("entity = %s/%d", entry.EntityType, entry.EntityId)
		}
		if entry.OldValue != "" {
			t.Fatalf("reconcile entries carry no old value, got %s", entry.OldValue)
		}
		if !strings.Contains(entry.NewValue, `"status"`) {
			t.Fatalf("new value = %s", entry.NewValue)
		}
	}
}
