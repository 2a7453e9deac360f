package models

import (
	"time"

	"gorm.io/gorm"
)

// StageEntry is one append-only line of the stage ledger: "quantity completed
// at stage N of order O by worker W". Rows are never updated or deleted;
// corrections are appended as compensating entries.
type StageEntry struct {
	ID                int       `gorm:"primary_key" json:"id"`
	BusinessId        string    `gorm:"size:64;index;not null" json:"business_id"`
	OrderId           int       `gorm:"index:idx_stage_entry,priority:1;not null" json:"order_id"`
	StageIndex        int       `gorm:"index:idx_stage_entry,priority:2;not null" json:"stage_index"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	WorkerId          int       `gorm:"index;not null" json:"worker_id"`
	Quantity          int       `gorm:"not null" json:"quantity"`
	EntryTime         time.Time `gorm:"index;not null" json:"entry_time"`
	CorrelationId     string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SumStageEntries returns per-stage entry totals for one order.
func SumStageEntries(tx *gorm.DB, businessId string, orderId int) (StageTotals, error) {
	type row struct {
		StageIndex int
		Total      int
	}
	var rows []row
	if err := tx.Model(&StageEntry{}).
		Select("stage_index, COALESCE(SUM(quantity), 0) AS total").
		Where("business_id = ? AND order_id = ?", businessId, orderId).
		Group("stage_index").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := StageTotals{}
	for _, r := range rows {
		totals[r.StageIndex] = r.Total
	}
	return totals, nil
}

// SumStageEntriesAt returns the summed entry quantity at one stage of one order.
func SumStageEntriesAt(tx *gorm.DB, businessId string, orderId int, stageIndex int) (int, error) {
	var total int
	if err := tx.Model(&StageEntry{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("business_id = ? AND order_id = ? AND stage_index = ?", businessId, orderId, stageIndex).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
