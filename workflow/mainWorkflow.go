package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const postingRetryLimit = 3

func correlationId(ctx context.Context) string {
	if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

// auditActor names the acting user for posting audit logs.
func auditActor(ctx context.Context) logrus.Fields {
	username, _ := utils.GetUsernameFromContext(ctx)
	displayName, _ := utils.GetUserNameFromContext(ctx)
	return logrus.Fields{
		"username":  username,
		"user_name": displayName,
	}
}

// isLockConflictErr matches MySQL deadlock (1213) and lock-wait-timeout (1205),
// the two conflicts worth an internal retry.
func isLockConflictErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

// runPostingTx runs fn as one posting transaction for the business: redis
// business lock, advisory GET_LOCK on the same connection, then the DB
// transaction. Lock conflicts are retried up to postingRetryLimit before
// surfacing as ErrConcurrentModification.
func runPostingTx(ctx context.Context, businessId string, fn func(tx *gorm.DB) error) error {
	if err := utils.BusinessLock(ctx, businessId, "posting", "workflow", "runPostingTx"); err != nil {
		return err
	}

	db := config.GetDB()
	var err error
	for attempt := 0; attempt < postingRetryLimit; attempt++ {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
				return err
			}
			defer ReleaseBusinessPostingLock(tx, businessId)
			return fn(tx)
		})
		if err == nil || !isLockConflictErr(err) {
			return err
		}
	}
	return ErrConcurrentModification
}

// ProcessProductionEvent is the push-subscription entry point for events this
// service itself consumes. Deduplicated by durable idempotency key; unknown
// event types are acknowledged and skipped.
func ProcessProductionEvent(ctx context.Context, logger *logrus.Logger, msg config.PubSubMessage) error {
	handlerName := handlerNameForEvent(msg.EventType)
	if handlerName == "" {
		return nil
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip, err := BeginIdempotency(tx, msg.BusinessId, handlerName, fmt.Sprint(msg.ID))
		if err != nil {
			config.LogError(logger, "mainWorkflow.go", "ProcessProductionEvent", "BeginIdempotency", msg.ID, err)
			return err
		}
		if skip {
			return nil
		}

		switch {
		case msg.EventType == string(models.EventTypeCatalogChanged):
			// Read-through caches are invalidated here, never refreshed in place.
			models.InvalidateCatalogCache(msg.BusinessId, msg.ReferenceId)
		case strings.HasPrefix(msg.EventType, "session."),
			strings.HasPrefix(msg.EventType, "order."),
			strings.HasPrefix(msg.EventType, "stock."):
			// Reservations, order status and packaged quantities all shift
			// queue backlogs.
			_ = config.RemoveRedisKeysByPattern(queueBacklogCachePattern(msg.BusinessId))
		}

		return MarkIdempotencySucceeded(tx, msg.BusinessId, handlerName, fmt.Sprint(msg.ID))
	})
}

func handlerNameForEvent(eventType string) string {
	switch eventType {
	case string(models.EventTypeCatalogChanged):
		return "CatalogCache"
	case string(models.EventTypeSessionAssigned),
		string(models.EventTypeSessionFinalized),
		string(models.EventTypeSessionCancelled),
		string(models.EventTypeOrderFinalized),
		string(models.EventTypeOrderCancelled),
		string(models.EventTypeStockMoved):
		return "QueueCache"
	default:
		return ""
	}
}
