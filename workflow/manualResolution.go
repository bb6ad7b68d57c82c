package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// ManualResolution is a human override of a computed verdict.
type ManualResolution struct {
	Status         models.MatchStatus `json:"status" binding:"required"`
	SystemRecordId *int               `json:"system_record_id"`
	Notes          string             `json:"notes" binding:"max=2000"`
}

// resolutionSnapshot is the audit old/new payload of a manual resolution.
type resolutionSnapshot struct {
	Status           models.MatchStatus `json:"status"`
	IsManualOverride bool               `json:"is_manual_override"`
	Notes            string             `json:"notes"`
}

type fieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ResolveResult applies a manual resolution to an existing result, persists
// it and appends one audit entry carrying the pre-resolution snapshot.
//
// The engine does not check that a supplied system record id exists or is
// flagged as a system record; that is the caller's responsibility.
func (e *Engine) ResolveResult(ctx context.Context, resultId int, resolution ManualResolution, actorId string) (*models.ReconciliationResult, error) {
	if !resolution.Status.Valid() {
		return nil, fmt.Errorf("invalid match status %q", string(resolution.Status))
	}

	result, err := e.store.GetResult(ctx, resultId)
	if err != nil {
		return nil, err
	}

	oldValue := resolutionSnapshot{
		Status:           result.Status,
		IsManualOverride: result.IsManualOverride,
		Notes:            result.Notes,
	}

	var changes []fieldChange
	if result.Status != resolution.Status {
		changes = append(changes, fieldChange{Field: "status", From: string(result.Status), To: string(resolution.Status)})
	}
	if !result.IsManualOverride {
		changes = append(changes, fieldChange{Field: "is_manual_override", From: "false", To: "true"})
	}
	if result.Notes != resolution.Notes {
		changes = append(changes, fieldChange{Field: "notes", From: result.Notes, To: resolution.Notes})
	}
	if resolution.SystemRecordId != nil {
		from := ""
		if result.SystemRecordId != nil {
			from = fmt.Sprint(*result.SystemRecordId)
		}
		changes = append(changes, fieldChange{Field: "system_record_id", From: from, To: fmt.Sprint(*resolution.SystemRecordId)})
	}

	now := time.Now().UTC()
	result.Status = resolution.Status
	result.IsManualOverride = true
	result.ResolvedBy = actorId
	result.ResolvedAt = &now
	result.Notes = resolution.Notes
	if resolution.SystemRecordId != nil {
		result.SystemRecordId = resolution.SystemRecordId
	}

	if err := e.store.SaveResolution(ctx, result); err != nil {
		config.LogError(e.logger, "ManualResolution.go", "ResolveResult", "Saving resolution", resultId, err)
		return nil, fmt.Errorf("%w: save resolution for result %d: %v", utils.ErrorPersistenceFailure, resultId, err)
	}

	oldJSON, err := utils.MarshalToJSON(oldValue)
	if err != nil {
		return nil, err
	}
	newJSON, err := utils.MarshalToJSON(resolutionSnapshot{
		Status:           result.Status,
		IsManualOverride: result.IsManualOverride,
		Notes:            result.Notes,
	})
	if err != nil {
		return nil, err
	}
	changesJSON, err := utils.MarshalToJSON(changes)
	if err != nil {
		return nil, err
	}

	entry := models.AuditLogEntry{
		BusinessId: result.BusinessId,
		EntityType: auditEntityReconciliationResult,
		EntityId:   result.ID,
		Action:     models.AuditActionResolve,
		ActorId:    actorId,
		Source:     models.AuditSourceManual,
		OldValue:   oldJSON,
		NewValue:   newJSON,
		Changes:    changesJSON,
	}
	if err := e.audit.Append(ctx, &entry); err != nil {
		config.LogError(e.logger, "ManualResolution.go", "ResolveResult", "Appending audit entry", result.ID, err)
		return nil, fmt.Errorf("%w: append audit entry for result %d: %v", utils.ErrorPersistenceFailure, result.ID, err)
	}

	return result, nil
}
