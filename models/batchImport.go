package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Expected column order of an import sheet. Additional columns are kept in
// RawData but not mapped.
var importColumns = []string{
	"transaction_id", "amount", "reference_number", "date", "description", "category",
}

var importDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006-01-02T15:04:05",
}

func parseImportDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func populateRecordRow(headers []string, row []string, rowNo int) (*TransactionRecord, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	if cell(0) == "" {
		return nil, fmt.Errorf("transaction id is null in row %d", rowNo)
	}

	amount, err := utils.ParseDecimal(cell(1))
	if err != nil {
		return nil, fmt.Errorf("could not parse amount in row %d: %v", rowNo, err)
	}

	date, err := parseImportDate(cell(3))
	if err != nil {
		return nil, fmt.Errorf("could not parse date in row %d: %v", rowNo, err)
	}

	// Keep the original header->cell mapping so downstream review can always
	// see what was actually uploaded.
	raw := make(map[string]string, len(headers))
	for i, h := range headers {
		raw[h] = cell(i)
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	return &TransactionRecord{
		TransactionId:   cell(0),
		Amount:          amount,
		ReferenceNumber: cell(2),
		TransactionDate: date,
		Description:     cell(4),
		Category:        cell(5),
		RowNumber:       rowNo,
		RawData:         string(rawJSON),
	}, nil
}

// ImportRecordsFromXlsx reads an .xlsx of transaction rows and creates one
// ReconciliationBatch plus its TransactionRecords in a single transaction.
// isSystemRecords marks the whole file as the authoritative side.
func ImportRecordsFromXlsx(ctx context.Context, file io.Reader, fileName string, isSystemRecords bool) (*ReconciliationBatch, error) {
	if file == nil {
		return nil, errors.New("nil file provided")
	}
	if !strings.HasSuffix(fileName, ".xlsx") {
		return nil, fmt.Errorf("invalid file type: only .xlsx files are allowed")
	}

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("sheet has no data rows")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	for i, col := range importColumns {
		if i >= len(headers) || !strings.EqualFold(headers[i], col) {
			return nil, fmt.Errorf("expected column %q at position %d", col, i+1)
		}
	}

	batch := ReconciliationBatch{
		ID:         uuid.NewString(),
		BusinessId: businessId,
		FileName:   fileName,
		Status:     BatchStatusPending,
	}

	records := make([]*TransactionRecord, 0, len(rows)-1)
	for idx, row := range rows[1:] {
		record, err := populateRecordRow(headers, row, idx+2)
		if err != nil {
			return nil, err
		}
		record.BusinessId = businessId
		record.BatchId = batch.ID
		record.IsSystemRecord = isSystemRecords
		records = append(records, record)
	}
	batch.TotalRecords = len(records)

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(records, 500).Error
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}
