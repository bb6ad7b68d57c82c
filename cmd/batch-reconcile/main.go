package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
)

// Runs reconciliation for a single batch directly against the database,
// bypassing pubsub. Meant for reprocessing stuck or failed batches.
func main() {
	batchID := flag.String("batch-id", "", "Required: reconciliation batch id (uuid)")
	actor := flag.String("actor", "ops-cli", "Actor id recorded on the audit trail")
	tolerance := flag.Float64("tolerance", config.AmountToleranceFromEnv(), "Amount tolerance as a fraction, e.g. 0.02")
	force := flag.Bool("force", false, "Run even when the batch is marked Completed or Processing")
	flag.Parse()

	if strings.TrimSpace(*batchID) == "" {
		fmt.Fprintln(os.Stderr, "--batch-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	ctx := context.Background()
	batch, err := models.GetBatch(ctx, *batchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load batch: %v\n", err)
		os.Exit(1)
	}
	if !*force && (batch.Status == models.BatchStatusCompleted || batch.Status == models.BatchStatusProcessing) {
		fmt.Fprintf(os.Stderr, "batch %s is %s; pass --force to rerun\n", *batchID, string(batch.Status))
		os.Exit(1)
	}

	ctx = utils.SetBusinessIdInContext(ctx, batch.BusinessId)
	ctx = utils.SetActorIdInContext(ctx, *actor)

	engine := workflow.NewEngine(
		models.NewGormRecordStore(db),
		models.NewAuditTrail(db),
		models.DefaultMatchRules(*tolerance),
		logger,
	)

	if err := models.SetBatchStatus(ctx, *batchID, models.BatchStatusProcessing, ""); err != nil {
		fmt.Fprintf(os.Stderr, "mark processing: %v\n", err)
		os.Exit(1)
	}

	summary, err := engine.ReconcileBatch(ctx, *batchID, *actor)
	if err != nil {
		_ = models.SetBatchStatus(ctx, *batchID, models.BatchStatusFailed, err.Error())
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}
	if err := models.SetBatchStatus(ctx, *batchID, models.BatchStatusCompleted, ""); err != nil {
		fmt.Fprintf(os.Stderr, "mark completed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("batch %s reconciled: total=%d matched=%d partial=%d not_matched=%d duplicate=%d\n",
		*batchID, summary.Total, summary.Matched, summary.PartiallyMatched, summary.NotMatched, summary.Duplicate)
}
