package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nine4-team/inventory_backend/config"
	"github.com/nine4-team/inventory_backend/importer"
	"github.com/nine4-team/inventory_backend/models"
	"github.com/nine4-team/inventory_backend/utils"
)

const defaultPort = "8080"

type importPreviewRequest struct {
	LineItems  []importer.LineItem       `json:"lineItems" validate:"required,min=1"`
	Placements []importer.ImagePlacement `json:"placements"`
}

type importPreviewResponse struct {
	Drafts   []importer.ItemDraft `json:"drafts"`
	Warnings []string             `json:"warnings,omitempty"`
	Debug    importer.MatchDebug  `json:"debug"`
}

type importConfirmRequest struct {
	ProjectId   int                  `json:"projectId" validate:"required,gt=0"`
	ImportKey   string               `json:"importKey"`
	TotalAmount string               `json:"totalAmount"`
	Drafts      []importer.ItemDraft `json:"drafts" validate:"required,min=1"`
	Receipt     *importer.AssetFile  `json:"receipt"`
}

type importConfirmResponse struct {
	TransactionId int `json:"transactionId"`
	ItemCount     int `json:"itemCount"`
	AssetCount    int `json:"assetCount"`
}

// businessIdMiddleware resolves the tenant for /api routes. Session/account
// plumbing lives in a separate service; this backend trusts the gateway's
// X-Business-Id header. The user headers are optional and feed audit logs.
func businessIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := strings.TrimSpace(c.GetHeader("X-Business-Id"))
		if businessId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-Business-Id is required"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if userId, err := strconv.Atoi(strings.TrimSpace(c.GetHeader("X-User-Id"))); err == nil && userId > 0 {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if userName := strings.TrimSpace(c.GetHeader("X-User-Name")); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// previewImportHandler runs draft building and thumbnail matching
// synchronously. No I/O: the user reviews the result before confirming.
func previewImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req importPreviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		drafts := importer.BuildItemDrafts(req.LineItems)
		matched := importer.MatchThumbnails(drafts, req.Placements)

		c.JSON(http.StatusOK, gin.H{"data": importPreviewResponse{
			Drafts:   matched.Drafts,
			Warnings: matched.Warnings,
			Debug:    matched.Debug,
		}})
	}
}

// confirmImportHandler persists the reviewed drafts and dispatches the
// asset finalization worker detached. The response carries no asset status:
// upload outcomes are surfaced later via notifications.
func confirmImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())

		var req importConfirmRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}

		// Without a client key each submit is its own import; with one,
		// re-submits collapse onto the first transaction.
		importKey := strings.TrimSpace(req.ImportKey)
		if importKey == "" {
			importKey = uuid.NewString()
		}

		records, filesByID := importer.ExpandDrafts(req.Drafts)
		txn, items, err := models.CreateImportTransaction(
			c.Request.Context(), businessId, req.ProjectId, importKey, utils.NormalizeMoney(req.TotalAmount), records)
		if errors.Is(err, models.ErrDuplicateImport) {
			c.JSON(http.StatusConflict, gin.H{"error": "import already confirmed"})
			return
		}
		if err != nil {
			config.LogError(logger, "server.go", "confirmImportHandler", "CreateImportTransaction", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create items"})
			return
		}

		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		userName, _ := utils.GetUserNameFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"business_id":    businessId,
			"transaction_id": txn.ID,
			"item_count":     len(items),
			"user_id":        userId,
			"user_name":      userName,
		}).Info("[import.confirmed]")

		payload := buildFinalizePayload(businessId, req, txn.ID, records, filesByID)
		dispatchFinalization(c.Request.Context(), logger, payload)

		c.JSON(http.StatusAccepted, gin.H{"data": importConfirmResponse{
			TransactionId: txn.ID,
			ItemCount:     len(items),
			AssetCount:    payload.TotalAssetCount,
		}})
	}
}

func buildFinalizePayload(businessId string, req importConfirmRequest, transactionId int, records []importer.ExpandedDraftRecord, filesByID map[string][]importer.AssetFile) importer.AssetFinalizePayload {
	payload := importer.AssetFinalizePayload{
		BusinessId:    businessId,
		ProjectId:     req.ProjectId,
		TransactionId: transactionId,
		Receipt:       req.Receipt,
	}
	// Records are in document order; build the pending list in the same
	// order so FIFO bucket consumption mirrors creation order.
	for _, record := range records {
		files := filesByID[record.ID]
		if len(files) == 0 {
			continue
		}
		payload.Assets = append(payload.Assets, importer.PendingAsset{
			Description: record.Template.Description,
			Files:       files,
		})
		payload.TotalAssetCount += len(files)
	}
	if req.Receipt != nil {
		payload.TotalAssetCount++
	}
	return payload
}

// dispatchFinalization launches the worker as a detached task: it outlives
// the request and reports only through notifications and logs. The Redis
// lock is a best-effort guard against double dispatch; run-scoped state
// keeps concurrent runs safe even without it.
func dispatchFinalization(reqCtx context.Context, logger *logrus.Logger, payload importer.AssetFinalizePayload) {
	if payload.TotalAssetCount == 0 {
		return
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(reqCtx)
	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, payload.BusinessId)
	ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	if userId, ok := utils.GetUserIdFromContext(reqCtx); ok {
		ctx = utils.SetUserIdInContext(ctx, userId)
	}
	if userName, ok := utils.GetUserNameFromContext(reqCtx); ok {
		ctx = utils.SetUserNameInContext(ctx, userName)
	}

	worker := importer.AssetFinalizationWorker{
		Items:    models.FinalizeStore{},
		Receipts: models.FinalizeStore{},
		Store:    gcsUploader{logger: logger},
		Notify:   models.NotificationWriter{Logger: logger},
		Logger:   logger,
	}

	logger.WithFields(logrus.Fields{
		"business_id":    payload.BusinessId,
		"transaction_id": payload.TransactionId,
		"asset_count":    payload.TotalAssetCount,
		"correlation_id": correlationId,
	}).Info("[finalize.dispatched]")

	go func() {
		if locker := config.GetRedisLock(); locker != nil {
			key := fmt.Sprintf("finalize:%s:%d", payload.BusinessId, payload.TransactionId)
			lock, err := locker.Obtain(ctx, key, 10*time.Minute, nil)
			if err == nil {
				defer lock.Release(ctx)
			} else {
				logger.WithFields(logrus.Fields{
					"key":   key,
					"error": err.Error(),
				}).Warn("finalize lock not obtained; continuing")
			}
		}
		worker.Run(ctx, payload)
		models.InvalidateCreatedItemsCache(payload.BusinessId, payload.TransactionId)
	}()
}

func notificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		notices, err := models.ListNotifications(c.Request.Context(), businessId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": notices})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("X-Business-Id", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api", businessIdMiddleware())
	api.POST("/imports/preview", previewImportHandler())
	api.POST("/imports/confirm", confirmImportHandler())
	api.GET("/notifications", notificationsHandler())

	r.GET("/uploads/object", uploadObjectHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"port": port,
	}).Info("server started")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
