package reports

import (
	"context"
	"math"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
)

type ReconciliationSummaryResponse struct {
	BatchId          string  `json:"batch_id"`
	Matched          int     `json:"matched"`
	PartiallyMatched int     `json:"partially_matched"`
	NotMatched       int     `json:"not_matched"`
	Duplicate        int     `json:"duplicate"`
	Total            int     `json:"total"`
	Accuracy         float64 `json:"accuracy"`
}

type statusCount struct {
	Status models.MatchStatus
	Cnt    int
}

func summaryCacheKey(batchId string) string {
	return "reconSummary:" + batchId
}

// InvalidateReconciliationSummary drops the cached summary of a batch. Called
// after a manual resolution changes a verdict.
func InvalidateReconciliationSummary(batchId string) error {
	return config.RemoveRedisKey(summaryCacheKey(batchId))
}

// summarize folds per-status counts into the response. Accuracy is the
// percentage of records classified matched or partially matched, rounded to
// two decimal places, and 0 for an empty batch.
func summarize(batchId string, counts []statusCount) *ReconciliationSummaryResponse {
	summary := &ReconciliationSummaryResponse{BatchId: batchId}
	for _, c := range counts {
		switch c.Status {
		case models.MatchStatusMatched:
			summary.Matched = c.Cnt
		case models.MatchStatusPartiallyMatched:
			summary.PartiallyMatched = c.Cnt
		case models.MatchStatusNotMatched:
			summary.NotMatched = c.Cnt
		case models.MatchStatusDuplicate:
			summary.Duplicate = c.Cnt
		}
		summary.Total += c.Cnt
	}
	if summary.Total > 0 {
		accuracy := float64(summary.Matched+summary.PartiallyMatched) / float64(summary.Total) * 100
		summary.Accuracy = math.Round(accuracy*100) / 100
	}
	return summary
}

func GetReconciliationSummary(ctx context.Context, batchId string) (*ReconciliationSummaryResponse, error) {

	var cached ReconciliationSummaryResponse
	exists, err := config.GetRedisObject(summaryCacheKey(batchId), &cached)
	if err != nil {
		return nil, err
	}
	if exists {
		return &cached, nil
	}

	sql := `
SELECT
    status,
    COUNT(*) AS cnt
FROM
    reconciliation_results
WHERE
    batch_id = ?
GROUP BY
    status
`

	var counts []statusCount
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, batchId).Scan(&counts).Error; err != nil {
		return nil, err
	}

	summary := summarize(batchId, counts)

	if err := config.SetRedisObject(summaryCacheKey(batchId), summary, summaryCacheTTLFromEnv()); err != nil {
		return nil, err
	}
	return summary, nil
}
