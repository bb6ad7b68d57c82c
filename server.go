package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/models/reports"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("recon-backend")

var (
	engineMu   sync.RWMutex
	engine     *workflow.Engine
	auditTrail *models.AuditTrail
)

func setEngine(e *workflow.Engine, t *models.AuditTrail) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engine = e
	auditTrail = t
}

func getEngine() (*workflow.Engine, *models.AuditTrail, bool) {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return engine, auditTrail, engine != nil
}

// requestContextMiddleware copies caller identity headers into the request
// context. Authentication itself happens upstream (API gateway); this layer
// only threads the already-verified identity through.
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if v := c.GetHeader("X-Business-Id"); v != "" {
			ctx = utils.SetBusinessIdInContext(ctx, v)
		}
		if v := c.GetHeader("X-Actor-Id"); v != "" {
			ctx = utils.SetActorIdInContext(ctx, v)
		}
		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorIdFromRequest(c *gin.Context) string {
	if actorId, ok := utils.GetActorIdFromContext(c.Request.Context()); ok && actorId != "" {
		return actorId
	}
	return "anonymous"
}

func importBatchHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if businessId, _ := utils.GetBusinessIdFromContext(ctx); businessId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Business-Id header is required"})
		return
	}

	side := c.DefaultQuery("side", "uploaded")
	if side != "uploaded" && side != "system" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be uploaded or system"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	batch, err := models.ImportRecordsFromXlsx(ctx, file, fileHeader.Filename, side == "system")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"batch": batch}

	// Uploaded batches are reconciled asynchronously; system-side batches
	// only extend the authoritative set.
	if side == "uploaded" {
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		messageId, err := config.PublishReconcileJob(ctx, config.ReconcileJobMessage{
			BatchId:       batch.ID,
			BusinessId:    batch.BusinessId,
			ActorId:       actorIdFromRequest(c),
			CorrelationId: correlationId,
			EnqueuedAt:    time.Now().UTC(),
		})
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "importBatchHandler", "Publishing reconcile job", batch.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "batch imported but reconcile dispatch failed", "batch": batch})
			return
		}
		response["message_id"] = messageId
	}

	c.JSON(http.StatusCreated, response)
}

func reconcileBatchHandler(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "reconcileBatchDispatch")
	defer span.End()

	batchId := c.Param("batchId")
	batch, err := models.GetBatch(ctx, batchId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	if batch.Status == models.BatchStatusProcessing {
		c.JSON(http.StatusConflict, gin.H{"error": "batch is already being reconciled"})
		return
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	messageId, err := config.PublishReconcileJob(ctx, config.ReconcileJobMessage{
		BatchId:       batch.ID,
		BusinessId:    batch.BusinessId,
		ActorId:       actorIdFromRequest(c),
		CorrelationId: correlationId,
		EnqueuedAt:    time.Now().UTC(),
	})
	if err != nil {
		config.LogError(config.GetLogger(), "server.go", "reconcileBatchHandler", "Publishing reconcile job", batchId, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile dispatch failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batch_id": batch.ID, "message_id": messageId})
}

func batchStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	batchId := c.Param("batchId")

	if _, err := models.GetBatch(ctx, batchId); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	summary, err := reports.GetReconciliationSummary(ctx, batchId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func batchResultsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	batchId := c.Param("batchId")

	if _, err := models.GetBatch(ctx, batchId); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	results, err := models.GetBatchResults(ctx, batchId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func batchRecordsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	batchId := c.Param("batchId")

	if _, err := models.GetBatch(ctx, batchId); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	side := c.DefaultQuery("side", "uploaded")
	if side != "uploaded" && side != "system" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be uploaded or system"})
		return
	}

	records, err := models.GetBatchRecords(ctx, batchId, side == "system")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func batchExportHandler(c *gin.Context) {
	ctx := c.Request.Context()
	batchId := c.Param("batchId")

	if _, err := models.GetBatch(ctx, batchId); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	f, err := reports.BuildReconciliationExcel(ctx, batchId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", `attachment; filename="reconciliation_`+batchId+`.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		config.LogError(config.GetLogger(), "server.go", "batchExportHandler", "Writing workbook", batchId, err)
	}
}

func resolveResultHandler(c *gin.Context) {
	ctx := c.Request.Context()

	e, _, ready := getEngine()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not ready"})
		return
	}

	resultId, err := strconv.Atoi(c.Param("resultId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result id"})
		return
	}

	var resolution workflow.ManualResolution
	if err := c.ShouldBindJSON(&resolution); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := e.ResolveResult(ctx, resultId, resolution, actorIdFromRequest(c))
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		if errors.Is(err, utils.ErrorPersistenceFailure) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := reports.InvalidateReconciliationSummary(result.BatchId); err != nil {
		config.LogError(config.GetLogger(), "server.go", "resolveResultHandler", "Invalidating summary cache", result.BatchId, err)
	}

	c.JSON(http.StatusOK, result)
}

func resultAuditHandler(c *gin.Context) {
	ctx := c.Request.Context()

	_, trail, ready := getEngine()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not ready"})
		return
	}

	resultId, err := strconv.Atoi(c.Param("resultId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result id"})
		return
	}

	if _, err := models.GetReconciliationResult(ctx, resultId); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}

	entries, err := trail.Query(ctx, "ReconciliationResult", resultId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func recordCandidatesHandler(c *gin.Context) {
	ctx := c.Request.Context()

	e, _, ready := getEngine()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not ready"})
		return
	}

	recordId, err := strconv.Atoi(c.Param("recordId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	record, err := models.GetTransactionRecord(ctx, recordId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	candidates, err := e.FindCandidates(ctx, *record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type scoredCandidate struct {
		Record models.TransactionRecord `json:"record"`
		Score  float64                  `json:"score"`
	}
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, scoredCandidate{Record: candidate, Score: e.Score(*record, candidate)})
	}
	c.JSON(http.StatusOK, gin.H{"candidates": scored})
}

func setupRouter() *gin.Engine {
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders,
		"X-Business-Id", "X-Actor-Id", "X-Correlation-Id")
	r.Use(cors.New(corsConfig))
	r.Use(requestContextMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/batches/import", importBatchHandler)
		api.POST("/batches/:batchId/reconcile", reconcileBatchHandler)
		api.GET("/batches/:batchId/stats", batchStatsHandler)
		api.GET("/batches/:batchId/results", batchResultsHandler)
		api.GET("/batches/:batchId/records", batchRecordsHandler)
		api.GET("/batches/:batchId/export", batchExportHandler)
		api.POST("/results/:resultId/resolve", resolveResultHandler)
		api.GET("/results/:resultId/audit", resultAuditHandler)
		api.GET("/records/:recordId/candidates", recordCandidatesHandler)
	}

	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	r := setupRouter()

	// Cloud Run: listen first, then bring up dependencies.
	go func() {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
		config.ConnectRedisWithRetry()

		db := config.GetDB()
		logger := config.GetLogger()
		rules := models.DefaultMatchRules(config.AmountToleranceFromEnv())
		trail := models.NewAuditTrail(db)
		setEngine(workflow.NewEngine(models.NewGormRecordStore(db), trail, rules, logger), trail)

		if err := RunReconcileWorker(); err != nil {
			config.LogError(logger, "server.go", "main", "Starting reconcile worker", nil, err)
		}
	}()

	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
