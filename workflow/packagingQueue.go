package workflow

import (
	"context"

	"github.com/mmdatafocus/factory_backend/models"
	"gorm.io/gorm"
)

// packagingOrderBacklogs lists orders of one key with finished-but-unpackaged
// quantity: quantity_finished minus quantity_packaged, oldest order first.
func packagingOrderBacklogs(tx *gorm.DB, businessId string, key models.ProductVariantKey) ([]QueueOrderBacklog, error) {
	sql := `
SELECT
    po.id AS order_id,
    po.number AS order_number,
    po.entry_date,
    fr.quantity_finished - fr.quantity_packaged AS backlog
FROM
    finishing_records fr
        JOIN
    production_orders po ON po.id = fr.order_id
WHERE
    fr.business_id = @businessId
        AND fr.product_id = @productId
        AND fr.variant_label = @variantLabel
        AND fr.quantity_finished > fr.quantity_packaged
ORDER BY po.entry_date , po.id;
`

	var backlogs []QueueOrderBacklog
	if err := tx.Raw(sql, map[string]interface{}{
		"businessId":   businessId,
		"productId":    key.ProductId,
		"variantLabel": key.VariantLabel,
	}).Scan(&backlogs).Error; err != nil {
		return nil, err
	}
	return backlogs, nil
}

// ListPackagingBacklog is the packaging queue's display view.
func ListPackagingBacklog(ctx context.Context) ([]*QueueBacklogLine, error) {
	return listQueueBacklog(ctx, models.QueueStagePackaging)
}
