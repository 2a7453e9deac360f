package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/middlewares"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"github.com/mmdatafocus/factory_backend/workflow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("factory-backend")

// PubSubPushEnvelope is the push-subscription wire format.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func productionPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var envelope PubSubPushEnvelope
		logger := config.GetLogger()

		// Redis lock is a best-effort optimization. Reliability must not depend
		// on Redis: posting is also serialized via MySQL advisory locks.
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "productionPubSubHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "server.go", "productionPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.PubSubMessage
		if err := json.Unmarshal(envelope.Message.Data, &m); err != nil {
			config.LogError(logger, "server.go", "productionPubSubHandler", "Unmarshal pubsub message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		if m.BusinessId == "" || m.EventType == "" {
			config.LogError(logger, "server.go", "productionPubSubHandler", "Invalid pubsub message (missing required fields)", m, fmt.Errorf("business_id/event_type required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = envelope.Message.ID
		}

		var lock *redislock.Lock
		if redisLock != nil {
			lock, err = redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:%s", m.BusinessId), 30*time.Second, nil)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"field":       "productionPubSubHandler",
					"business_id": m.BusinessId,
					"event_type":  m.EventType,
					"message_id":  envelope.Message.ID,
				}).Warn("could not obtain redis lock; proceeding without redis lock")
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":       "productionPubSubHandler",
					"business_id": m.BusinessId,
					"message_id":  envelope.Message.ID,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), m.BusinessId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		ctx, span := tracer.Start(ctx, "ProcessProductionEvent")
		defer span.End()
		if err := workflow.ProcessProductionEvent(ctx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "productionPubSubHandler",
				"business_id":    m.BusinessId,
				"event_type":     m.EventType,
				"message_id":     envelope.Message.ID,
				"correlation_id": correlationID,
			}).Error("pubsub processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func registerRoutes(r *gin.Engine) {
	r.POST("/auth/login", loginHandler)
	r.POST("/pubsub", productionPubSubHandler())

	api := r.Group("/api", middlewares.RequireAuth())
	{
		api.POST("/cuts", recordCutHandler)
		api.GET("/cuts", listCutsHandler)
		api.GET("/cuts/:id/remainder", cutRemainderHandler)
		api.POST("/cuts/:id/orders", splitCutIntoOrdersHandler)

		api.POST("/orders", createOrderHandler)
		api.GET("/orders", listOrdersHandler)
		api.GET("/orders/:id", getOrderHandler)
		api.POST("/orders/:id/assign-cut", assignCutHandler)
		api.POST("/orders/:id/finalize", finalizeOrderHandler)
		api.POST("/orders/:id/cancel", cancelOrderHandler)

		api.POST("/stage-entries", recordStageEntryHandler)
		api.GET("/stage-availability", stageAvailabilityHandler)

		api.GET("/finishing-backlog", finishingBacklogHandler)
		api.GET("/packaging-backlog", packagingBacklogHandler)

		api.POST("/sessions", assignSessionHandler)
		api.POST("/sessions/batch", assignSessionsBatchHandler)
		api.GET("/sessions", listSessionsHandler)
		api.POST("/sessions/:id/finalize", finalizeSessionHandler)
		api.POST("/sessions/:id/cancel", cancelSessionHandler)

		api.POST("/demands", createDemandHandler)
		api.GET("/demands", listDemandsHandler)
		api.DELETE("/demands/:id", deleteDemandHandler)
		api.GET("/demand-diagnostics", demandDiagnosticsHandler)

		api.POST("/products", createProductHandler)
		api.GET("/products", listProductsHandler)
		api.GET("/products/:id", getProductHandler)
		api.POST("/entities/:kind/:id/active", setEntityActiveHandler)

		api.GET("/reports/backlog.xlsx", backlogExportHandler)
	}

	admin := r.Group("/admin", middlewares.RequireAuth(), middlewares.RequireAdmin())
	{
		admin.POST("/businesses", createBusinessHandler)
		admin.POST("/users", createUserHandler)
	}
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
	// Until DB/Redis are ready, app endpoints return 503.
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
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
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
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
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

	// Outbox dispatcher publishes AFTER commit.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	if config.OutboxDispatcherEnabled() {
		go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't pick up new work mid-drain.
	cancelDispatcher()

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

// customErrorLogger logs only requests that collected errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}
