package workflow

import "bitbucket.org/mmdatafocus/recon_backend/models"

// Score thresholds for the verdict decision table.
const (
	MatchedThreshold      = 0.95
	PartialMatchThreshold = 0.60
)

// Classify maps a match score and duplicate count to a verdict. A duplicate
// transaction id wins over any score, including a perfect one.
func Classify(score float64, duplicateCount int) models.MatchStatus {
	switch {
	case duplicateCount > 1:
		return models.MatchStatusDuplicate
	case score >= MatchedThreshold:
		return models.MatchStatusMatched
	case score >= PartialMatchThreshold:
		return models.MatchStatusPartiallyMatched
	default:
		return models.MatchStatusNotMatched
	}
}
