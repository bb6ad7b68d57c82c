package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type reconciliationExportRow struct {
	RowNumber        int
	TransactionId    string
	Amount           decimal.Decimal
	ReferenceNumber  string
	TransactionDate  time.Time
	Status           models.MatchStatus
	MatchScore       float64
	SystemRecordId   *int
	IsManualOverride bool
	Notes            string
}

func getReconciliationExportRows(ctx context.Context, batchId string) ([]*reconciliationExportRow, error) {

	sql := `
SELECT
    r.row_number,
    r.transaction_id,
    r.amount,
    r.reference_number,
    r.transaction_date,
    res.status,
    res.match_score,
    res.system_record_id,
    res.is_manual_override,
    res.notes
FROM
    reconciliation_results res
    LEFT JOIN transaction_records r ON r.id = res.uploaded_record_id
WHERE
    res.batch_id = ?
ORDER BY
    r.row_number ASC
`

	var rows []*reconciliationExportRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, batchId).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

var exportHeaders = []string{
	"RowNumber", "TransactionId", "Amount", "ReferenceNumber", "Date",
	"Status", "MatchScore", "SystemRecordId", "ManualOverride", "Notes",
}

// BuildReconciliationExcel renders a batch's verdicts as an .xlsx workbook.
func BuildReconciliationExcel(ctx context.Context, batchId string) (*excelize.File, error) {
	rows, err := getReconciliationExportRows(ctx, batchId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for i, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for i, row := range rows {
		systemRecordId := ""
		if row.SystemRecordId != nil {
			systemRecordId = fmt.Sprint(*row.SystemRecordId)
		}
		values := []interface{}{
			row.RowNumber,
			row.TransactionId,
			row.Amount.String(),
			row.ReferenceNumber,
			row.TransactionDate.Format("2006-01-02"),
			string(row.Status),
			row.MatchScore,
			systemRecordId,
			row.IsManualOverride,
			row.Notes,
		}
		for j, value := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}
