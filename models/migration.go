package models

import (
	"log"

	"bitbucket.org/mmdatafocus/recon_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&ReconciliationBatch{}, &TransactionRecord{},
		&ReconciliationResult{},
		&AuditLogEntry{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
