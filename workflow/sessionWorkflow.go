package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignSessionInput struct {
	ProductId    int               `json:"product_id" binding:"required"`
	VariantLabel string            `json:"variant_label"`
	QueueStage   models.QueueStage `json:"queue_stage" binding:"required,oneof=Finishing Packaging"`
	Quantity     int               `json:"quantity" binding:"required,gt=0"`
}

// AssignWorkerSession reserves quantity from a queue for the calling worker.
// The reservation is the sum of active sessions, read inside the posting
// transaction, so two concurrent assignments can never jointly reserve more
// than the availability either of them saw committed.
func AssignWorkerSession(ctx context.Context, input *AssignSessionInput) (*models.WorkerSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	workerId, ok := utils.GetWorkerIdFromContext(ctx)
	if !ok || workerId == 0 {
		return nil, models.ErrWorkerIdRequired
	}
	key := models.NewProductVariantKey(input.ProductId, input.VariantLabel)
	if err := models.ValidateKey(ctx, businessId, key); err != nil {
		return nil, err
	}

	var session *models.WorkerSession
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		var err error
		session, err = assignSession(ctx, tx, businessId, workerId, key, input.QueueStage, input.Quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// assignSession does the guarded reservation inside an open posting
// transaction. quantity 0 means "assign the full current availability".
func assignSession(ctx context.Context, tx *gorm.DB, businessId string, workerId int, key models.ProductVariantKey, queueStage models.QueueStage, quantity int) (*models.WorkerSession, error) {
	active, err := models.HasActiveSession(tx, businessId, workerId, key, queueStage)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrSessionAlreadyActive
	}

	available, err := AggregateAvailable(tx, businessId, key, queueStage)
	if err != nil {
		return nil, err
	}
	if quantity == 0 {
		quantity = available
	}
	if quantity <= 0 || quantity > available {
		return nil, ErrInsufficientUpstream
	}

	session := models.WorkerSession{
		BusinessId:        businessId,
		WorkerId:          workerId,
		ProductVariantKey: key,
		QueueStage:        queueStage,
		QuantityAssigned:  quantity,
		Status:            models.WorkerSessionStatusActive,
		StartedAt:         time.Now().UTC(),
		CorrelationId:     correlationId(ctx),
	}
	if err := tx.Create(&session).Error; err != nil {
		return nil, err
	}
	if err := models.PublishEvent(ctx, tx, businessId, session.StartedAt, session.ID, models.EventReferenceTypeWorkerSession, models.EventTypeSessionAssigned, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

type BatchAssignItem struct {
	ProductId    int               `json:"product_id" binding:"required"`
	VariantLabel string            `json:"variant_label"`
	QueueStage   models.QueueStage `json:"queue_stage" binding:"required,oneof=Finishing Packaging"`
}

type SkippedAssignment struct {
	Item   BatchAssignItem `json:"item"`
	Reason string          `json:"reason"`
}

type BatchAssignResult struct {
	Sessions []*models.WorkerSession `json:"sessions"`
	Skipped  []SkippedAssignment     `json:"skipped"`
}

// AssignWorkerSessionsBatch assigns the full current availability of each item
// to the calling worker. Items whose availability dropped to zero between
// selection and confirmation are skipped and reported, never dropped silently;
// the remaining items still proceed.
func AssignWorkerSessionsBatch(ctx context.Context, items []BatchAssignItem) (*BatchAssignResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	workerId, ok := utils.GetWorkerIdFromContext(ctx)
	if !ok || workerId == 0 {
		return nil, models.ErrWorkerIdRequired
	}

	result := &BatchAssignResult{}
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		result.Sessions = result.Sessions[:0]
		result.Skipped = result.Skipped[:0]
		for _, item := range items {
			key := models.NewProductVariantKey(item.ProductId, item.VariantLabel)
			if err := models.ValidateKey(ctx, businessId, key); err != nil {
				result.Skipped = append(result.Skipped, SkippedAssignment{Item: item, Reason: "unknown product or variant"})
				continue
			}
			session, err := assignSession(ctx, tx, businessId, workerId, key, item.QueueStage, 0)
			switch err {
			case nil:
				result.Sessions = append(result.Sessions, session)
			case ErrInsufficientUpstream:
				result.Skipped = append(result.Skipped, SkippedAssignment{Item: item, Reason: "no quantity available"})
			case ErrSessionAlreadyActive:
				result.Skipped = append(result.Skipped, SkippedAssignment{Item: item, Reason: "active session already exists"})
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FinalizeWorkerSession converts a reservation into ledger effect. The
// completed quantity may differ from the assigned quantity but never exceed
// it; the consumption drains the oldest contributing order first.
func FinalizeWorkerSession(ctx context.Context, sessionId int, quantityCompleted int) (*models.WorkerSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	if quantityCompleted < 0 {
		return nil, ErrInsufficientUpstream
	}

	var session *models.WorkerSession
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		var err error
		session, err = lockWorkerSession(tx, businessId, sessionId)
		if err != nil {
			return err
		}
		if session.Status != models.WorkerSessionStatusActive {
			return ErrSessionNotActive
		}
		if quantityCompleted > session.QuantityAssigned {
			return ErrInsufficientUpstream
		}

		now := time.Now().UTC()
		if quantityCompleted > 0 {
			backlogs, err := queueOrderBacklogs(tx, businessId, session.ProductVariantKey, session.QueueStage)
			if err != nil {
				return err
			}
			allocations, err := AllocateFIFO(backlogs, quantityCompleted)
			if err != nil {
				return err
			}
			switch session.QueueStage {
			case models.QueueStagePackaging:
				err = applyPackagingAllocations(ctx, tx, businessId, session, allocations, now)
			default:
				err = applyFinishingAllocations(tx, businessId, session, allocations, now)
			}
			if err != nil {
				return err
			}
		}

		session.Status = models.WorkerSessionStatusCompleted
		session.QuantityCompleted = &quantityCompleted
		session.EndedAt = &now
		if err := tx.Model(&models.WorkerSession{}).
			Where("business_id = ? AND id = ?", businessId, session.ID).
			Updates(map[string]interface{}{
				"status":             session.Status,
				"quantity_completed": session.QuantityCompleted,
				"ended_at":           session.EndedAt,
			}).Error; err != nil {
			return err
		}
		return models.PublishEvent(ctx, tx, businessId, now, session.ID, models.EventReferenceTypeWorkerSession, models.EventTypeSessionFinalized, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func applyFinishingAllocations(tx *gorm.DB, businessId string, session *models.WorkerSession, allocations []QueueAllocation, now time.Time) error {
	total := 0
	for _, alloc := range allocations {
		record, err := models.FirstOrCreateFinishingRecord(tx, businessId, alloc.OrderId, session.ProductVariantKey, now)
		if err != nil {
			return err
		}
		if err := models.AddFinishedQty(tx, record.ID, alloc.Quantity); err != nil {
			return err
		}
		total += alloc.Quantity
	}
	return models.UpdateStockSummaryFinishedQty(tx, businessId, session.ProductVariantKey, total)
}

func applyPackagingAllocations(ctx context.Context, tx *gorm.DB, businessId string, session *models.WorkerSession, allocations []QueueAllocation, now time.Time) error {
	total := 0
	for _, alloc := range allocations {
		record, err := models.FirstOrCreateFinishingRecord(tx, businessId, alloc.OrderId, session.ProductVariantKey, now)
		if err != nil {
			return err
		}
		if err := models.AddPackagedQty(tx, record.ID, alloc.Quantity); err != nil {
			return err
		}
		total += alloc.Quantity
	}

	movement, err := models.AppendStockMovement(ctx, tx, businessId, session.ProductVariantKey, total, models.StockMovementTypePackaging, session.ID, now)
	if err != nil {
		return err
	}
	if err := models.UpdateStockSummaryPackagedQty(tx, businessId, session.ProductVariantKey, total); err != nil {
		return err
	}
	return models.PublishEvent(ctx, tx, businessId, now, session.ID, models.EventReferenceTypeStockMovement, models.EventTypeStockMoved, movement)
}

// CancelWorkerSession releases the full reserved quantity back to the queue
// unchanged. No ledger line is written.
func CancelWorkerSession(ctx context.Context, sessionId int) (*models.WorkerSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	var session *models.WorkerSession
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		var err error
		session, err = lockWorkerSession(tx, businessId, sessionId)
		if err != nil {
			return err
		}
		if session.Status != models.WorkerSessionStatusActive {
			return ErrSessionNotActive
		}

		now := time.Now().UTC()
		session.Status = models.WorkerSessionStatusCancelled
		session.EndedAt = &now
		if err := tx.Model(&models.WorkerSession{}).
			Where("business_id = ? AND id = ?", businessId, session.ID).
			Updates(map[string]interface{}{
				"status":   session.Status,
				"ended_at": session.EndedAt,
			}).Error; err != nil {
			return err
		}
		return models.PublishEvent(ctx, tx, businessId, now, session.ID, models.EventReferenceTypeWorkerSession, models.EventTypeSessionCancelled, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func lockWorkerSession(tx *gorm.DB, businessId string, sessionId int) (*models.WorkerSession, error) {
	var session models.WorkerSession
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, sessionId).
		First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &session, nil
}

// ListWorkerSessions lists sessions, optionally narrowed to one worker or status.
func ListWorkerSessions(ctx context.Context, workerId *int, status *models.WorkerSessionStatus) ([]*models.WorkerSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	db := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId)
	if workerId != nil {
		db = db.Where("worker_id = ?", *workerId)
	}
	if status != nil {
		db = db.Where("status = ?", *status)
	}

	var sessions []*models.WorkerSession
	if err := db.Order("started_at DESC, id DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
