package models

import (
	"time"

	"gorm.io/gorm"
)

// LossRecord is the permanent write-off created when an order is finalized
// short of its target. Exactly one per finalized-divergent order; immutable.
type LossRecord struct {
	ID                int       `gorm:"primary_key" json:"id"`
	BusinessId        string    `gorm:"size:64;index;not null" json:"business_id"`
	OrderId           int       `gorm:"index:idx_loss_order,unique;not null" json:"order_id"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	Quantity          int       `gorm:"not null" json:"quantity"`
	Reason            string    `gorm:"size:255" json:"reason"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SumLossForKey totals written-off quantity for one key.
func SumLossForKey(tx *gorm.DB, businessId string, key ProductVariantKey) (int, error) {
	var total int
	if err := tx.Model(&LossRecord{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("business_id = ? AND product_id = ? AND variant_label = ?", businessId, key.ProductId, key.VariantLabel).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
