package workflow

import (
	"time"

	"github.com/mmdatafocus/factory_backend/models"
	"gorm.io/gorm"
)

// QueueOrderBacklog is one order's positive assignable balance at a queue.
type QueueOrderBacklog struct {
	OrderId     int       `json:"order_id"`
	OrderNumber int       `json:"order_number"`
	EntryDate   time.Time `json:"entry_date"`
	Backlog     int       `json:"backlog"`
}

// QueueAllocation is one order's share of a drained aggregate quantity.
type QueueAllocation struct {
	OrderId  int `json:"order_id"`
	Quantity int `json:"quantity"`
}

// AllocateFIFO drains quantity across contributing orders oldest first.
// backlogs must already be ordered by entry date, then order id, the explicit
// tie-break that keeps order-level ledgers deterministic. Fails
// ErrInsufficientUpstream when quantity exceeds the total backlog.
func AllocateFIFO(backlogs []QueueOrderBacklog, quantity int) ([]QueueAllocation, error) {
	if quantity <= 0 {
		return nil, ErrInsufficientUpstream
	}

	allocations := make([]QueueAllocation, 0, len(backlogs))
	remaining := quantity
	for _, b := range backlogs {
		if remaining == 0 {
			break
		}
		if b.Backlog <= 0 {
			continue
		}
		take := b.Backlog
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, QueueAllocation{OrderId: b.OrderId, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, ErrInsufficientUpstream
	}
	return allocations, nil
}

// queueOrderBacklogs returns the per-order backlog rows for one key at one
// queue, oldest order first.
func queueOrderBacklogs(tx *gorm.DB, businessId string, key models.ProductVariantKey, queueStage models.QueueStage) ([]QueueOrderBacklog, error) {
	switch queueStage {
	case models.QueueStagePackaging:
		return packagingOrderBacklogs(tx, businessId, key)
	default:
		return finishingOrderBacklogs(tx, businessId, key)
	}
}

// AggregateAvailable is the assignable total for one key at one queue:
// summed order backlogs minus quantity held by active sessions. Must be read
// inside the posting transaction when used as an assignment guard.
func AggregateAvailable(tx *gorm.DB, businessId string, key models.ProductVariantKey, queueStage models.QueueStage) (int, error) {
	backlogs, err := queueOrderBacklogs(tx, businessId, key, queueStage)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range backlogs {
		total += b.Backlog
	}

	reserved, err := models.SumActiveReservations(tx, businessId, key, queueStage)
	if err != nil {
		return 0, err
	}
	return total - reserved, nil
}
