package workflow

import (
	"context"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordCut registers an immutable cut batch, the initial quantity injection
// for its key. Emits cut.recorded through the outbox.
func RecordCut(ctx context.Context, input *models.NewCutBatch) (*models.CutBatch, error) {
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

	// Batches are booked against the business-local calendar day.
	business, err := models.GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}
	cutDate, err := utils.ConvertToDate(input.CutDate, business.Timezone)
	if err != nil {
		return nil, err
	}

	batch := models.CutBatch{
		BusinessId:        businessId,
		ProductVariantKey: key,
		Quantity:          input.Quantity,
		FabricUsed:        input.FabricUsed,
		CutDate:           cutDate,
		OriginLabel:       input.OriginLabel,
		DemandId:          input.DemandId,
	}

	err = runPostingTx(ctx, businessId, func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		if err := models.UpdateStockSummaryCutQty(tx, businessId, key, batch.Quantity); err != nil {
			return err
		}
		return models.PublishEvent(ctx, tx, businessId, batch.CutDate, batch.ID, models.EventReferenceTypeCutBatch, models.EventTypeCutRecorded, &batch)
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// lockCutBatch loads the batch FOR UPDATE so concurrent order creations cannot
// both consume its remainder.
func lockCutBatch(tx *gorm.DB, businessId string, batchId int) (*models.CutBatch, error) {
	var batch models.CutBatch
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, batchId).
		First(&batch).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// batchOrderConsumption is what one order of a batch still holds against the
// batch quantity.
type batchOrderConsumption struct {
	Status         models.ProductionOrderStatus
	CutQuantity    int
	StageZeroTotal int
}

// orderCutConsumption: a live order holds its full cut assignment. A cancelled
// order releases only the part it never entered at stage 0; quantity already
// entered stays consumed, or reassigning it would drive the key's stage-0
// balance negative.
func orderCutConsumption(c batchOrderConsumption) int {
	if c.Status == models.ProductionOrderStatusCancelled {
		return c.StageZeroTotal
	}
	return c.CutQuantity
}

func sumBatchConsumption(rows []batchOrderConsumption) int {
	consumed := 0
	for _, row := range rows {
		consumed += orderCutConsumption(row)
	}
	return consumed
}

// CutBatchRemainder is the batch quantity not yet held by any order.
// Cancelled orders release their unconsumed cut back to the batch.
func CutBatchRemainder(tx *gorm.DB, businessId string, batch *models.CutBatch) (int, error) {
	sql := `
SELECT
    po.status,
    po.cut_quantity,
    COALESCE(s0.qty, 0) AS stage_zero_total
FROM
    production_orders po
        LEFT JOIN
    (SELECT
        order_id, SUM(quantity) AS qty
    FROM
        stage_entries
    WHERE
        business_id = @businessId AND stage_index = 0
    GROUP BY order_id) s0 ON s0.order_id = po.id
WHERE
    po.business_id = @businessId
        AND po.cut_batch_id = @batchId;
`

	var rows []batchOrderConsumption
	if err := tx.Raw(sql, map[string]interface{}{
		"businessId": businessId,
		"batchId":    batch.ID,
	}).Scan(&rows).Error; err != nil {
		return 0, err
	}
	return batch.Quantity - sumBatchConsumption(rows), nil
}

// GetCutBatchRemainder is the read-only view of the same figure.
func GetCutBatchRemainder(ctx context.Context, batchId int) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, models.ErrBusinessIdRequired
	}
	db := config.GetDB().WithContext(ctx)
	var batch models.CutBatch
	if err := db.Where("business_id = ? AND id = ?", businessId, batchId).
		First(&batch).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, utils.ErrorRecordNotFound
		}
		return 0, err
	}
	return CutBatchRemainder(db, businessId, &batch)
}

func ListCutBatches(ctx context.Context, key *models.ProductVariantKey) ([]*models.CutBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	db := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId)
	if key != nil {
		db = db.Where("product_id = ? AND variant_label = ?", key.ProductId, key.VariantLabel)
	}

	var batches []*models.CutBatch
	if err := db.Order("cut_date DESC, id DESC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
