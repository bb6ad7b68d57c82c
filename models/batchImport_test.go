package models

import (
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

func TestParseImportDate(t *testing.T) {
	tests := []struct {
		value string
		want  time.Time
	}{
		{"2026-03-15", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2026-03-15 10:30:00", time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"03/15/2026", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2026-03-15T10:30:00", time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"  2026-03-15  ", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
	}
	for _, tc := range tests {
		got, err := parseImportDate(tc.value)
		if err != nil {
			t.Fatalf("parseImportDate(%q): %v", tc.value, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parseImportDate(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}

	if _, err := parseImportDate("15th of March"); err == nil {
		t.Fatalf("expected error for an unrecognized date")
	}
}

func TestPopulateRecordRow(t *testing.T) {
	headers := []string{"transaction_id", "amount", "reference_number", "date", "description", "category", "branch"}
	row := []string{"TXN-100", "1,250.50", "INV-77", "2026-03-15", "wire transfer", "payments", "downtown"}

	record, err := populateRecordRow(headers, row, 2)
	if err != nil {
		t.Fatalf("populateRecordRow: %v", err)
	}
	if record.TransactionId != "TXN-100" {
		t.Fatalf("transaction id = %q", record.TransactionId)
	}
	if want, _ := utils.ParseDecimal("1250.50"); !record.Amount.Equal(want) {
		t.Fatalf("amount = %s, want 1250.50", record.Amount)
	}
	if record.ReferenceNumber != "INV-77" || record.Description != "wire transfer" || record.Category != "payments" {
		t.Fatalf("mapped fields = %+v", record)
	}
	if record.RowNumber != 2 {
		t.Fatalf("row number = %d", record.RowNumber)
	}
	// Unmapped columns survive in the raw payload.
	if !strings.Contains(record.RawData, `"branch":"downtown"`) {
		t.Fatalf("raw data = %s", record.RawData)
	}
}

func TestPopulateRecordRow_ShortRow(t *testing.T) {
	headers := []string{"transaction_id", "amount", "reference_number", "date", "description", "category"}
	row := []string{"TXN-1", "100"}

	record, err := populateRecordRow(headers, row, 3)
	if err != nil {
		t.Fatalf("populateRecordRow: %v", err)
	}
	if record.ReferenceNumber != "" || record.Description != "" {
		t.Fatalf("missing cells should map to empty strings: %+v", record)
	}
	if !record.TransactionDate.IsZero() {
		t.Fatalf("date = %v, want zero", record.TransactionDate)
	}
}

func TestPopulateRecordRow_Invalid(t *testing.T) {
	headers := []string{"transaction_id", "amount", "reference_number", "date", "description", "category"}

	if _, err := populateRecordRow(headers, []string{"", "100"}, 2); err == nil {
		t.Fatalf("expected error for a missing transaction id")
	}
	if _, err := populateRecordRow(headers, []string{"TXN-1", "abc"}, 2); err == nil {
		t.Fatalf("expected error for an unparsable amount")
	}
	if _, err := populateRecordRow(headers, []string{"TXN-1", "100", "", "not a date"}, 2); err == nil {
		t.Fatalf("expected error for an unparsable date")
	}
}
