package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type NewProductionOrder struct {
	ProductId      int        `json:"product_id" binding:"required"`
	VariantLabel   string     `json:"variant_label"`
	TargetQuantity int        `json:"target_quantity" binding:"required,gt=0"`
	EntryDate      time.Time  `json:"entry_date" binding:"required"`
	DueDate        *time.Time `json:"due_date"`
	DemandId       *int       `json:"demand_id"`
}

// OrderPartition is one slice of a cut batch turned into its own order.
type OrderPartition struct {
	TargetQuantity int        `json:"target_quantity" binding:"required,gt=0"`
	CutQuantity    int        `json:"cut_quantity" binding:"required,gt=0"`
	DueDate        *time.Time `json:"due_date"`
}

// CreateProductionOrder creates a manual order awaiting a cut: status open,
// no stage-0 balance until a cut batch is assigned. Stages are copied from the
// product's template and frozen.
func CreateProductionOrder(ctx context.Context, input *NewProductionOrder) (*models.ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	key := models.NewProductVariantKey(input.ProductId, input.VariantLabel)
	if err := models.ValidateKey(ctx, businessId, key); err != nil {
		return nil, err
	}
	if input.DemandId != nil {
		if err := utils.ValidateResourceId[models.Demand](ctx, businessId, *input.DemandId); err != nil {
			return nil, err
		}
	}
	template, err := models.GetStageTemplate(ctx, key.ProductId)
	if err != nil {
		return nil, err
	}

	var order *models.ProductionOrder
	err = runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		order, err = createOrder(ctx, tx, businessId, key, template, createOrderParams{
			TargetQuantity: input.TargetQuantity,
			EntryDate:      input.EntryDate.UTC(),
			DueDate:        input.DueDate,
			DemandId:       input.DemandId,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrdersFromCutBatch partitions a batch's unassigned remainder into one
// or more producing orders. Whatever is left unassigned stays available for a
// further order against the same batch.
func CreateOrdersFromCutBatch(ctx context.Context, batchId int, partitions []OrderPartition) ([]*models.ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	if len(partitions) == 0 {
		return nil, utils.ErrorRecordNotFound
	}

	var orders []*models.ProductionOrder
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		batch, err := lockCutBatch(tx, businessId, batchId)
		if err != nil {
			return err
		}
		remainder, err := CutBatchRemainder(tx, businessId, batch)
		if err != nil {
			return err
		}
		requested := 0
		for _, p := range partitions {
			requested += p.CutQuantity
		}
		if requested > remainder {
			return ErrInsufficientUpstream
		}

		template, err := models.GetStageTemplate(ctx, batch.ProductId)
		if err != nil {
			return err
		}

		orders = make([]*models.ProductionOrder, 0, len(partitions))
		for _, p := range partitions {
			order, err := createOrder(ctx, tx, businessId, batch.ProductVariantKey, template, createOrderParams{
				TargetQuantity: p.TargetQuantity,
				CutQuantity:    p.CutQuantity,
				EntryDate:      batch.CutDate,
				DueDate:        p.DueDate,
				CutBatchId:     &batch.ID,
				DemandId:       batch.DemandId,
			})
			if err != nil {
				return err
			}
			orders = append(orders, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

type createOrderParams struct {
	TargetQuantity int
	CutQuantity    int
	EntryDate      time.Time
	DueDate        *time.Time
	CutBatchId     *int
	DemandId       *int
}

func createOrder(ctx context.Context, tx *gorm.DB, businessId string, key models.ProductVariantKey, template []models.StageTemplate, params createOrderParams) (*models.ProductionOrder, error) {
	number, err := models.NextOrderNumber(tx, businessId)
	if err != nil {
		return nil, err
	}

	status := models.ProductionOrderStatusOpen
	if params.CutQuantity > 0 {
		status = models.ProductionOrderStatusProducing
	}

	order := models.ProductionOrder{
		BusinessId:        businessId,
		Number:            number,
		ProductVariantKey: key,
		TargetQuantity:    params.TargetQuantity,
		CutQuantity:       params.CutQuantity,
		Status:            status,
		EntryDate:         params.EntryDate,
		DueDate:           params.DueDate,
		CutBatchId:        params.CutBatchId,
		DemandId:          params.DemandId,
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}

	order.Stages = make([]models.ProductionOrderStage, 0, len(template))
	for _, stage := range template {
		order.Stages = append(order.Stages, models.ProductionOrderStage{
			BusinessId: businessId,
			OrderId:    order.ID,
			StageIndex: stage.StageIndex,
			Name:       stage.Name,
		})
	}
	if len(order.Stages) > 0 {
		if err := tx.Create(&order.Stages).Error; err != nil {
			return nil, err
		}
	}
	return &order, nil
}

// AssignCutToOrder moves an open order into producing by drawing quantity from
// a cut batch of the same key.
func AssignCutToOrder(ctx context.Context, orderId int, batchId int, quantity int) (*models.ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	if quantity <= 0 {
		return nil, ErrInsufficientUpstream
	}

	var order *models.ProductionOrder
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		var err error
		order, err = lockProductionOrder(tx, businessId, orderId)
		if err != nil {
			return err
		}
		switch order.Status {
		case models.ProductionOrderStatusFinalized:
			return ErrAlreadyFinalized
		case models.ProductionOrderStatusCancelled:
			return ErrAlreadyCancelled
		}

		batch, err := lockCutBatch(tx, businessId, batchId)
		if err != nil {
			return err
		}
		if batch.ProductVariantKey != order.ProductVariantKey {
			return utils.ErrorRecordNotFound
		}
		remainder, err := CutBatchRemainder(tx, businessId, batch)
		if err != nil {
			return err
		}
		if quantity > remainder {
			return ErrInsufficientUpstream
		}

		order.CutQuantity += quantity
		order.CutBatchId = &batch.ID
		order.Status = models.ProductionOrderStatusProducing
		return tx.Model(&models.ProductionOrder{}).
			Where("business_id = ? AND id = ?", businessId, order.ID).
			Updates(map[string]interface{}{
				"cut_quantity": order.CutQuantity,
				"cut_batch_id": order.CutBatchId,
				"status":       order.Status,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FinalizeProductionOrder closes the order terminally. A last-stage total
// short of target writes exactly one loss record and marks the order
// divergent; a retried finalize fails ErrAlreadyFinalized without a second
// loss row.
func FinalizeProductionOrder(ctx context.Context, orderId int, reason string) (*models.ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	var order *models.ProductionOrder
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		var err error
		order, err = lockProductionOrder(tx, businessId, orderId)
		if err != nil {
			return err
		}
		switch order.Status {
		case models.ProductionOrderStatusFinalized:
			return ErrAlreadyFinalized
		case models.ProductionOrderStatusCancelled:
			return ErrAlreadyCancelled
		}

		totals, err := models.SumStageEntries(tx, businessId, order.ID)
		if err != nil {
			return err
		}
		lastTotal := totals[order.LastStageIndex()]
		if lastTotal == 0 {
			return ErrNotReadyToFinalize
		}
		if config.StrictOrderImmutability() && !models.ReadyToFinalize(len(order.Stages), totals) {
			return ErrNotReadyToFinalize
		}

		now := time.Now().UTC()
		shortfall := models.ShortfallAtFinalize(order.TargetQuantity, lastTotal)
		if shortfall > 0 {
			loss := models.LossRecord{
				BusinessId:        businessId,
				OrderId:           order.ID,
				ProductVariantKey: order.ProductVariantKey,
				Quantity:          shortfall,
				Reason:            reason,
			}
			if err := tx.Create(&loss).Error; err != nil {
				return err
			}
		}

		order.Status = models.ProductionOrderStatusFinalized
		order.Divergent = shortfall > 0
		order.FinalizedAt = &now
		if err := tx.Model(&models.ProductionOrder{}).
			Where("business_id = ? AND id = ?", businessId, order.ID).
			Updates(map[string]interface{}{
				"status":       order.Status,
				"divergent":    order.Divergent,
				"finalized_at": order.FinalizedAt,
			}).Error; err != nil {
			return err
		}
		return models.PublishEvent(ctx, tx, businessId, now, order.ID, models.EventReferenceTypeProductionOrder, models.EventTypeOrderFinalized, order)
	})
	if err != nil {
		return nil, err
	}
	config.GetLogger().WithFields(auditActor(ctx)).WithFields(logrus.Fields{
		"field":     "FinalizeProductionOrder",
		"order_id":  order.ID,
		"divergent": order.Divergent,
	}).Info("production order finalized")
	return order, nil
}

// CancelProductionOrder terminally cancels an open or producing order. Cut the
// order never entered at stage 0 returns to the batch remainder; entered
// quantity stays consumed.
func CancelProductionOrder(ctx context.Context, orderId int) (*models.ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	var order *models.ProductionOrder
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		var err error
		order, err = lockProductionOrder(tx, businessId, orderId)
		if err != nil {
			return err
		}
		switch order.Status {
		case models.ProductionOrderStatusFinalized:
			return ErrAlreadyFinalized
		case models.ProductionOrderStatusCancelled:
			return ErrAlreadyCancelled
		}

		now := time.Now().UTC()
		order.Status = models.ProductionOrderStatusCancelled
		order.CancelledAt = &now
		if err := tx.Model(&models.ProductionOrder{}).
			Where("business_id = ? AND id = ?", businessId, order.ID).
			Updates(map[string]interface{}{
				"status":       order.Status,
				"cancelled_at": order.CancelledAt,
			}).Error; err != nil {
			return err
		}
		return models.PublishEvent(ctx, tx, businessId, now, order.ID, models.EventReferenceTypeProductionOrder, models.EventTypeOrderCancelled, order)
	})
	if err != nil {
		return nil, err
	}
	config.GetLogger().WithFields(auditActor(ctx)).WithFields(logrus.Fields{
		"field":    "CancelProductionOrder",
		"order_id": order.ID,
	}).Info("production order cancelled")
	return order, nil
}

// ProductionOrderView adds the derived per-stage figures the UI shows next to
// the frozen stage list.
type ProductionOrderView struct {
	models.ProductionOrder
	StageTotals       models.StageTotals `json:"stage_totals"`
	StageAvailability map[int]int        `json:"stage_availability"`
	ReadyToFinalize   bool               `json:"ready_to_finalize"`
}

func GetProductionOrder(ctx context.Context, orderId int) (*ProductionOrderView, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	db := config.GetDB().WithContext(ctx)
	var order models.ProductionOrder
	if err := db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("stage_index ASC")
	}).Where("business_id = ? AND id = ?", businessId, orderId).
		First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	totals, err := models.SumStageEntries(db, businessId, order.ID)
	if err != nil {
		return nil, err
	}

	availability := make(map[int]int, len(order.Stages))
	for i := range order.Stages {
		availability[i] = OrderStageAvailability(order.CutQuantity, totals, i)
	}

	return &ProductionOrderView{
		ProductionOrder:   order,
		StageTotals:       totals,
		StageAvailability: availability,
		ReadyToFinalize:   models.ReadyToFinalize(len(order.Stages), totals),
	}, nil
}

func ListProductionOrders(ctx context.Context, status *models.ProductionOrderStatus) ([]*models.ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	db := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId)
	if status != nil {
		db = db.Where("status = ?", *status)
	}

	var orders []*models.ProductionOrder
	if err := db.Order("entry_date DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
