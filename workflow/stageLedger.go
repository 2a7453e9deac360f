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

// OrderStageAvailability returns how much the order can still enter at
// stageIndex. Stage 0 draws from the order's assigned cut quantity; stage i>0
// draws from the order's own stage i-1 total. No cross-order borrowing.
func OrderStageAvailability(cutQuantity int, totals models.StageTotals, stageIndex int) int {
	if stageIndex == 0 {
		return cutQuantity - totals[0]
	}
	return totals[stageIndex-1] - totals[stageIndex]
}

// AvailableAt is the key-level point-in-time balance at one stage:
// stage 0 = cut quantity injected minus entries at stage 0,
// stage i>0 = entries at stage i-1 minus entries at stage i.
func AvailableAt(ctx context.Context, key models.ProductVariantKey, stageIndex int) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, models.ErrBusinessIdRequired
	}
	db := config.GetDB().WithContext(ctx)

	sumEntries := func(idx int) (int, error) {
		var total int
		err := db.Model(&models.StageEntry{}).
			Select("COALESCE(SUM(quantity), 0)").
			Where("business_id = ? AND product_id = ? AND variant_label = ? AND stage_index = ?",
				businessId, key.ProductId, key.VariantLabel, idx).
			Scan(&total).Error
		return total, err
	}

	atStage, err := sumEntries(stageIndex)
	if err != nil {
		return 0, err
	}

	if stageIndex == 0 {
		var cutTotal int
		if err := db.Model(&models.CutBatch{}).
			Select("COALESCE(SUM(quantity), 0)").
			Where("business_id = ? AND product_id = ? AND variant_label = ?",
				businessId, key.ProductId, key.VariantLabel).
			Scan(&cutTotal).Error; err != nil {
			return 0, err
		}
		return cutTotal - atStage, nil
	}

	upstream, err := sumEntries(stageIndex - 1)
	if err != nil {
		return 0, err
	}
	return upstream - atStage, nil
}

type NewStageEntry struct {
	OrderId    int        `json:"order_id" binding:"required"`
	StageIndex int        `json:"stage_index" binding:"gte=0"`
	Quantity   int        `json:"quantity" binding:"required,gt=0"`
	EntryTime  *time.Time `json:"entry_time"`
}

// RecordStageEntry appends one ledger line for an order's stage, guarded by
// the order's own upstream balance. The write is atomic: posting lock, row
// lock on the order, balance check and insert in one transaction.
func RecordStageEntry(ctx context.Context, input *NewStageEntry) (*models.StageEntry, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	workerId, ok := utils.GetWorkerIdFromContext(ctx)
	if !ok || workerId == 0 {
		return nil, models.ErrWorkerIdRequired
	}

	var entry *models.StageEntry
	err := runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		order, err := lockProductionOrder(tx, businessId, input.OrderId)
		if err != nil {
			return err
		}
		switch order.Status {
		case models.ProductionOrderStatusFinalized:
			return ErrAlreadyFinalized
		case models.ProductionOrderStatusCancelled:
			return ErrAlreadyCancelled
		}
		if input.StageIndex < 0 || input.StageIndex > order.LastStageIndex() {
			return utils.ErrorRecordNotFound
		}

		totals, err := models.SumStageEntries(tx, businessId, order.ID)
		if err != nil {
			return err
		}
		if input.Quantity > OrderStageAvailability(order.CutQuantity, totals, input.StageIndex) {
			return ErrInsufficientUpstream
		}

		entryTime := time.Now().UTC()
		if input.EntryTime != nil {
			entryTime = input.EntryTime.UTC()
		}
		entry = &models.StageEntry{
			BusinessId:        businessId,
			OrderId:           order.ID,
			StageIndex:        input.StageIndex,
			ProductVariantKey: order.ProductVariantKey,
			WorkerId:          workerId,
			Quantity:          input.Quantity,
			EntryTime:         entryTime,
			CorrelationId:     correlationId(ctx),
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// lockProductionOrder loads the order with its frozen stages under FOR UPDATE,
// serializing all mutations of one order.
func lockProductionOrder(tx *gorm.DB, businessId string, orderId int) (*models.ProductionOrder, error) {
	var order models.ProductionOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, orderId).
		First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := tx.Where("business_id = ? AND order_id = ?", businessId, orderId).
		Order("stage_index ASC").
		Find(&order.Stages).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
