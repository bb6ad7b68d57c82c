package workflow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/recon_backend/models"
)

func TestAmountRange(t *testing.T) {
	min, max := amountRange(decimal.NewFromInt(100), 0.02)
	if !min.Equal(decimal.RequireFromString("98")) || !max.Equal(decimal.RequireFromString("102")) {
		t.Fatalf("range = [%s, %s], want [98, 102]", min, max)
	}

	// A negative amount times (1±tolerance) flips the ordering.
	min, max = amountRange(decimal.NewFromInt(-100), 0.02)
	if !min.Equal(decimal.RequireFromString("-102")) || !max.Equal(decimal.RequireFromString("-98")) {
		t.Fatalf("range = [%s, %s], want [-102, -98]", min, max)
	}
}

func TestMatchIndex_ExactTierWins(t *testing.T) {
	exact := record(10, "biz-1", "sys", "TXN-1", "100", "REF-OTHER")
	partial := record(11, "biz-1", "sys", "TXN-9", "101", "REF-1")
	ix := newMatchIndex([]models.TransactionRecord{exact, partial})

	uploaded := record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1")
	got := ix.findCandidates(uploaded, 0.02)
	if len(got) != 1 || got[0].ID != 10 {
		t.Fatalf("candidates = %+v, want only the exact-tier record", got)
	}
}

func TestMatchIndex_ExactTierNeedsEqualAmount(t *testing.T) {
	// Same transaction id but a different amount falls out of the exact
	// tier; the reference tier picks it up when the band allows.
	sys := record(10, "biz-1", "sys", "TXN-1", "101", "REF-1")
	ix := newMatchIndex([]models.TransactionRecord{sys})

	uploaded := record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1")
	got := ix.findCandidates(uploaded, 0.02)
	if len(got) != 1 || got[0].ID != 10 {
		t.Fatalf("candidates = %+v, want the reference-tier record", got)
	}
}

func TestMatchIndex_ReferenceBandInclusive(t *testing.T) {
	inBandLow := record(10, "biz-1", "sys", "S-1", "98", "REF-1")
	inBandHigh := record(11, "biz-1", "sys", "S-2", "102", "REF-1")
	outOfBand := record(12, "biz-1", "sys", "S-3", "102.01", "REF-1")
	otherRef := record(13, "biz-1", "sys", "S-4", "100", "REF-2")
	ix := newMatchIndex([]models.TransactionRecord{inBandLow, inBandHigh, outOfBand, otherRef})

	uploaded := record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1")
	got := ix.findCandidates(uploaded, 0.02)
	if len(got) != 2 {
		t.Fatalf("candidates = %+v, want the two in-band records", got)
	}
	if got[0].ID != 10 || got[1].ID != 11 {
		t.Fatalf("candidate order = %d, %d, want fetch order 10, 11", got[0].ID, got[1].ID)
	}
}

func TestMatchIndex_NoCandidates(t *testing.T) {
	ix := newMatchIndex(nil)
	uploaded := record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1")
	if got := ix.findCandidates(uploaded, 0.02); len(got) != 0 {
		t.Fatalf("candidates = %+v, want none", got)
	}
}

func TestFindCandidates_PointQueries(t *testing.T) {
	store := newFakeStore()
	store.system["biz-1"] = []models.TransactionRecord{
		record(10, "biz-1", "sys", "TXN-1", "100", "REF-OTHER"),
		record(11, "biz-1", "sys", "S-2", "99", "REF-1"),
	}
	e := newTestEngine(store, &fakeAudit{}, 0.02)

	uploaded := record(1, "biz-1", "batch-1", "TXN-1", "100", "REF-1")
	got, err := e.FindCandidates(context.Background(), uploaded)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != 10 {
		t.Fatalf("candidates = %+v, want the exact-tier record", got)
	}

	// With no exact hit the reference tier takes over.
	uploaded.TransactionId = "TXN-MISSING"
	got, err = e.FindCandidates(context.Background(), uploaded)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != 11 {
		t.Fatalf("candidates = %+v, want the reference-tier record", got)
	}
}
