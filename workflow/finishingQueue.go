package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

// Queue snapshots are refreshed at most once a minute between event-driven
// invalidations; stage entries carry no event of their own.
const queueBacklogCacheLifespan = time.Minute

func queueBacklogCacheKey(businessId string, queueStage models.QueueStage) string {
	return "QueueBacklog:" + businessId + ":" + string(queueStage)
}

// queueBacklogCachePattern matches every stage's snapshot of one business.
func queueBacklogCachePattern(businessId string) string {
	return "QueueBacklog:" + businessId + ":*"
}

// finishingOrderBacklogs lists orders of one key with sewn-but-unfinished
// quantity: last-stage entry total minus quantity_finished, oldest first.
func finishingOrderBacklogs(tx *gorm.DB, businessId string, key models.ProductVariantKey) ([]QueueOrderBacklog, error) {
	sql := `
SELECT
    po.id AS order_id,
    po.number AS order_number,
    po.entry_date,
    COALESCE(last_entries.qty, 0) - COALESCE(fr.quantity_finished, 0) AS backlog
FROM
    production_orders po
        LEFT JOIN
    (SELECT
        se.order_id, SUM(se.quantity) AS qty
    FROM
        stage_entries se
            JOIN
        (SELECT
            order_id, MAX(stage_index) AS idx
        FROM
            production_order_stages
        GROUP BY order_id) ls ON ls.order_id = se.order_id
            AND ls.idx = se.stage_index
    GROUP BY se.order_id) last_entries ON last_entries.order_id = po.id
        LEFT JOIN
    finishing_records fr ON fr.order_id = po.id
WHERE
    po.business_id = @businessId
        AND po.product_id = @productId
        AND po.variant_label = @variantLabel
        AND po.status IN ('Producing', 'Finalized')
HAVING backlog > 0
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

// QueueBacklogLine is one key's assignable total at a queue, with the
// contributing per-order rows the UI expands into.
type QueueBacklogLine struct {
	Key          models.ProductVariantKey `json:"key"`
	QueueStage   models.QueueStage        `json:"queue_stage"`
	Total        int                      `json:"total"`
	Reserved     int                      `json:"reserved"`
	Available    int                      `json:"available"`
	VariantImage string                   `json:"variant_image,omitempty"`
	Orders       []QueueOrderBacklog      `json:"orders"`
}

// ListFinishingBacklog is the finishing queue's display view: eventually
// consistent, no locks.
func ListFinishingBacklog(ctx context.Context) ([]*QueueBacklogLine, error) {
	return listQueueBacklog(ctx, models.QueueStageFinishing)
}

func listQueueBacklog(ctx context.Context, queueStage models.QueueStage) ([]*QueueBacklogLine, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	cacheKey := queueBacklogCacheKey(businessId, queueStage)
	var cached []*QueueBacklogLine
	if exists, err := config.GetRedisObject(cacheKey, &cached); err == nil && exists {
		return cached, nil
	}

	db := config.GetDB().WithContext(ctx)

	keys, err := activeQueueKeys(db, businessId)
	if err != nil {
		return nil, err
	}

	lines := make([]*QueueBacklogLine, 0, len(keys))
	for _, key := range keys {
		backlogs, err := queueOrderBacklogs(db, businessId, key, queueStage)
		if err != nil {
			return nil, err
		}
		if len(backlogs) == 0 {
			continue
		}
		total := 0
		for _, b := range backlogs {
			total += b.Backlog
		}
		reserved, err := models.SumActiveReservations(db, businessId, key, queueStage)
		if err != nil {
			return nil, err
		}

		line := &QueueBacklogLine{
			Key:        key,
			QueueStage: queueStage,
			Total:      total,
			Reserved:   reserved,
			Available:  total - reserved,
			Orders:     backlogs,
		}
		if image, err := models.GetVariantImage(ctx, key); err == nil {
			line.VariantImage = image
		}
		lines = append(lines, line)
	}

	_ = config.SetRedisObject(cacheKey, &lines, queueBacklogCacheLifespan)
	return lines, nil
}

// activeQueueKeys lists the distinct keys with live orders, the candidate
// rows of both queue views.
func activeQueueKeys(tx *gorm.DB, businessId string) ([]models.ProductVariantKey, error) {
	var keys []models.ProductVariantKey
	if err := tx.Model(&models.ProductionOrder{}).
		Select("DISTINCT product_id, variant_label").
		Where("business_id = ? AND status IN ?", businessId,
			[]models.ProductionOrderStatus{models.ProductionOrderStatusProducing, models.ProductionOrderStatusFinalized}).
		Scan(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}
