package models

import (
	"time"
)

// ProductionOrder (OP) owns a frozen ordered list of stages and accumulates
// stage entries against them. Stages are copied from the product's stage
// template at creation and never reordered afterwards.
type ProductionOrder struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	BusinessId        string                `gorm:"size:64;index:idx_op_number,unique,priority:1;not null" json:"business_id"`
	Number            int                   `gorm:"index:idx_op_number,unique,priority:2;not null" json:"number"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	TargetQuantity    int                   `gorm:"not null" json:"target_quantity"`
	CutQuantity       int                   `gorm:"not null;default:0" json:"cut_quantity"`
	Status            ProductionOrderStatus `gorm:"type:enum('Open','Producing','Finalized','Cancelled');default:'Open';index" json:"status"`
	Divergent         bool                  `gorm:"not null;default:false" json:"divergent"`
	EntryDate         time.Time             `gorm:"index;not null" json:"entry_date"`
	DueDate           *time.Time            `json:"due_date"`
	CutBatchId        *int                  `gorm:"index" json:"cut_batch_id"`
	DemandId          *int                  `gorm:"index" json:"demand_id"`
	FinalizedAt       *time.Time            `json:"finalized_at"`
	CancelledAt       *time.Time            `json:"cancelled_at"`
	Stages            []ProductionOrderStage `gorm:"foreignKey:OrderId" json:"stages"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductionOrderStage is one frozen stage of an order.
type ProductionOrderStage struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;index;not null" json:"business_id"`
	OrderId    int    `gorm:"index:idx_op_stage,unique,priority:1;not null" json:"order_id"`
	StageIndex int    `gorm:"index:idx_op_stage,unique,priority:2;not null" json:"stage_index"`
	Name       string `gorm:"size:100;not null" json:"name"`
}

// StageTotals maps stage_index -> summed entry quantity for one order.
type StageTotals map[int]int

// LastStageIndex returns the final sewing stage index, -1 for an order with no stages.
func (op *ProductionOrder) LastStageIndex() int {
	return len(op.Stages) - 1
}

// ShortfallAtFinalize is the loss quantity a finalization would write:
// max(0, target - total completed at the last stage).
func ShortfallAtFinalize(targetQuantity int, lastStageTotal int) int {
	shortfall := targetQuantity - lastStageTotal
	if shortfall < 0 {
		return 0
	}
	return shortfall
}

// ReadyToFinalize is the UI-visible signal: every stage has at least one entry
// and the last stage alone has total > 0. A last-stage total below target still
// allows finalization, with an explicit partial-loss warning; a last-stage
// total of zero does not.
func ReadyToFinalize(stageCount int, totals StageTotals) bool {
	if stageCount == 0 {
		return false
	}
	for i := 0; i < stageCount; i++ {
		if totals[i] <= 0 {
			return false
		}
	}
	return totals[stageCount-1] > 0
}
