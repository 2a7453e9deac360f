package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderNumberSeries assigns unique, monotonically increasing OP numbers per
// business. The row is locked FOR UPDATE inside the creating transaction so
// two concurrent creations can never draw the same number.
type OrderNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;uniqueIndex;not null" json:"business_id"`
	LastNumber int       `gorm:"not null;default:0" json:"last_number"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func NextOrderNumber(tx *gorm.DB, businessId string) (int, error) {
	series := OrderNumberSeries{BusinessId: businessId}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		FirstOrCreate(&series).Error; err != nil {
		return 0, err
	}
	next := series.LastNumber + 1
	if err := tx.Model(&OrderNumberSeries{}).
		Where("id = ?", series.ID).
		Update("last_number", next).Error; err != nil {
		return 0, err
	}
	return next, nil
}
