package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FinishingRecord tracks post-sewing consolidation for one (order, key):
// quantity_finished only grows as finishing sessions complete, and
// quantity_packaged only grows behind it, never past it.
type FinishingRecord struct {
	ID                int       `gorm:"primary_key" json:"id"`
	BusinessId        string    `gorm:"size:64;index;not null" json:"business_id"`
	OrderId           int       `gorm:"index:idx_finishing_order,unique;not null" json:"order_id"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	QuantityFinished  int       `gorm:"not null;default:0" json:"quantity_finished"`
	QuantityPackaged  int       `gorm:"not null;default:0" json:"quantity_packaged"`
	RecordDate        time.Time `gorm:"index;not null" json:"record_date"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateFinishingRecord locks (FOR UPDATE) or creates the record for one order.
func FirstOrCreateFinishingRecord(tx *gorm.DB, businessId string, orderId int, key ProductVariantKey, date time.Time) (*FinishingRecord, error) {
	record := FinishingRecord{
		BusinessId:        businessId,
		OrderId:           orderId,
		ProductVariantKey: key,
		RecordDate:        date,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND order_id = ?", businessId, orderId).
		FirstOrCreate(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

// AddFinishedQty bumps quantity_finished for an order's record.
func AddFinishedQty(tx *gorm.DB, recordId int, qty int) error {
	return tx.Exec("UPDATE finishing_records SET quantity_finished = quantity_finished + ? WHERE id = ?", qty, recordId).Error
}

// AddPackagedQty bumps quantity_packaged, guarded so it can never exceed
// quantity_finished regardless of interleaving.
func AddPackagedQty(tx *gorm.DB, recordId int, qty int) error {
	result := tx.Exec(
		"UPDATE finishing_records SET quantity_packaged = quantity_packaged + ? WHERE id = ? AND quantity_packaged + ? <= quantity_finished",
		qty, recordId, qty,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPackagedExceedsFinished
	}
	return nil
}
