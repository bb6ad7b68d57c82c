package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type MatchStatus string

const (
	MatchStatusMatched          MatchStatus = "matched"
	MatchStatusPartiallyMatched MatchStatus = "partially_matched"
	MatchStatusNotMatched       MatchStatus = "not_matched"
	MatchStatusDuplicate        MatchStatus = "duplicate"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusMatched, MatchStatusPartiallyMatched, MatchStatusNotMatched, MatchStatusDuplicate:
		return true
	}
	return false
}

func (s MatchStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid match status: %q", string(s))
	}
	return string(s), nil
}

func (s *MatchStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = MatchStatus(v)
	case []byte:
		*s = MatchStatus(v)
	default:
		return errors.New("match status must be string")
	}
	if !s.Valid() {
		return fmt.Errorf("invalid match status: %q", string(*s))
	}
	return nil
}

type AuditSource string

const (
	AuditSourceSystem AuditSource = "system"
	AuditSourceManual AuditSource = "manual"
)

type AuditAction string

const (
	AuditActionReconcile AuditAction = "reconcile"
	AuditActionResolve   AuditAction = "resolve"
)

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "Pending"
	BatchStatusProcessing BatchStatus = "Processing"
	BatchStatusCompleted  BatchStatus = "Completed"
	BatchStatusFailed     BatchStatus = "Failed"
)
