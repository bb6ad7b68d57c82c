package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/models/reports"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

var (
	batchMutexMap = make(map[string]*sync.Mutex)
	globalMutex   = &sync.Mutex{}
)

// reconcileLockTTL bounds the cross-instance batch lock and doubles as the
// staleness horizon for a Processing status: past it, the instance that set
// the status is assumed dead.
const reconcileLockTTL = 10 * time.Minute

// shouldRunReconcile decides whether a delivered job may run against the
// batch's current state. Completed batches never rerun. Processing batches
// rerun only once the status is stale; a fresh Processing status means
// another instance holds the run. Pending and Failed batches always run.
func shouldRunReconcile(batch *models.ReconciliationBatch, now time.Time) bool {
	switch batch.Status {
	case models.BatchStatusCompleted:
		return false
	case models.BatchStatusProcessing:
		return now.Sub(batch.UpdatedAt) >= reconcileLockTTL
	default:
		return true
	}
}

// RunReconcileWorker subscribes to reconcile jobs and drives the engine.
// The engine itself takes no locks; at-most-one run per batch is enforced
// here, with an in-process mutex per batch plus a redis lock across
// instances.
func RunReconcileWorker() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Batches are independent, so several may be in flight at once.
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.ReconcileJobMessage{}
		err := json.Unmarshal(msg.Data, &m)
		if err != nil {
			config.LogError(logger, "reconcileWorker.go", "RunReconcileWorker", "Unmarshaling pubsub message", msg.Data, err)
			// malformed payload will never parse; drop it
			msg.Ack()
			return
		}

		if processReconcileJob(ctx, logger, m) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	}

	go func() {
		err := sub.Receive(ctx, callback)
		if err != nil {
			config.LogError(logger, "reconcileWorker.go", "RunReconcileWorker", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

// processReconcileJob runs one job end to end. Returns true when the message
// should be acked (success or a permanent failure already recorded on the
// batch).
func processReconcileJob(ctx context.Context, logger *logrus.Logger, m config.ReconcileJobMessage) bool {
	// Get or create the mutex for the current batch
	globalMutex.Lock()
	mutex, exists := batchMutexMap[m.BatchId]
	if !exists {
		mutex = &sync.Mutex{}
		batchMutexMap[m.BatchId] = mutex
	}
	globalMutex.Unlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Cross-instance guard for the same batch.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "reconcileBatch:"+m.BatchId, reconcileLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				// another instance holds it; redeliver later
				return false
			}
			config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "Obtaining batch lock", m.BatchId, err)
			return false
		}
		defer lock.Release(ctx)
	}

	ctx = utils.SetBusinessIdInContext(ctx, m.BusinessId)
	ctx = utils.SetCorrelationIdInContext(ctx, m.CorrelationId)

	batch, err := models.GetBatch(ctx, m.BatchId)
	if err != nil {
		config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "Loading batch", m.BatchId, err)
		// unknown batch will never resolve; drop the message
		return true
	}
	if !shouldRunReconcile(batch, time.Now().UTC()) {
		logger.WithFields(logrus.Fields{
			"module":   "reconcileWorker.go",
			"batch_id": m.BatchId,
			"status":   string(batch.Status),
		}).Warn("skipping reconcile job for batch not in a runnable state")
		return true
	}

	// A batch reaching this point may carry results from a run that failed
	// partway or from an instance that died mid-run. Each record gets
	// exactly one result per batch, so the rerun starts from zero.
	if err := models.DeleteBatchResults(ctx, m.BatchId); err != nil {
		config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "Clearing results before rerun", m.BatchId, err)
		return false
	}

	if err := models.SetBatchStatus(ctx, m.BatchId, models.BatchStatusProcessing, ""); err != nil {
		config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "Marking batch processing", m.BatchId, err)
		return false
	}

	e, _, ready := getEngine()
	if !ready {
		_ = models.SetBatchStatus(ctx, m.BatchId, models.BatchStatusPending, "")
		return false
	}

	summary, err := e.ReconcileBatch(ctx, m.BatchId, m.ActorId)
	if err != nil {
		if markErr := models.SetBatchStatus(ctx, m.BatchId, models.BatchStatusFailed, err.Error()); markErr != nil {
			config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "Marking batch failed", m.BatchId, markErr)
		}
		if errors.Is(err, utils.ErrorNoRecords) {
			// empty batches stay failed; retrying cannot help
			return true
		}
		config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "ReconcileBatch", m.BatchId, err)
		return false
	}

	if err := models.SetBatchStatus(ctx, m.BatchId, models.BatchStatusCompleted, ""); err != nil {
		config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "Marking batch completed", m.BatchId, err)
		return false
	}
	if err := reports.InvalidateReconciliationSummary(m.BatchId); err != nil {
		config.LogError(logger, "reconcileWorker.go", "processReconcileJob", "Invalidating summary cache", m.BatchId, err)
	}

	logger.WithFields(logrus.Fields{
		"module":            "reconcileWorker.go",
		"batch_id":          m.BatchId,
		"total":             summary.Total,
		"matched":           summary.Matched,
		"partially_matched": summary.PartiallyMatched,
		"not_matched":       summary.NotMatched,
		"duplicate":         summary.Duplicate,
	}).Info("batch reconciled")

	return true
}
