package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

// Demand is a request for a quantity of a key to be produced. Soft-deletable;
// consumption is always derived from the ledgers, never stored back here.
type Demand struct {
	ID                int            `gorm:"primary_key" json:"id"`
	BusinessId        string         `gorm:"size:64;index;not null" json:"business_id"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	QuantityRequested int            `gorm:"not null" json:"quantity_requested"`
	Priority          int            `gorm:"not null;default:0" json:"priority"`
	Note              string         `gorm:"size:255" json:"note"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewDemand struct {
	ProductId         int    `json:"product_id" binding:"required"`
	VariantLabel      string `json:"variant_label"`
	QuantityRequested int    `json:"quantity_requested" binding:"required,gt=0"`
	Priority          int    `json:"priority"`
	Note              string `json:"note"`
}

func CreateDemand(ctx context.Context, input *NewDemand) (*Demand, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	key := NewProductVariantKey(input.ProductId, input.VariantLabel)
	if err := ValidateKey(ctx, businessId, key); err != nil {
		return nil, err
	}

	demand := Demand{
		BusinessId:        businessId,
		ProductVariantKey: key,
		QuantityRequested: input.QuantityRequested,
		Priority:          input.Priority,
		Note:              input.Note,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&demand).Error; err != nil {
			return err
		}
		return PublishEvent(ctx, tx, businessId, time.Now().UTC(), demand.ID, EventReferenceTypeDemand, EventTypeDemandChanged, &demand)
	})
	if err != nil {
		return nil, err
	}
	return &demand, nil
}

// DeleteDemand soft-deletes; the reconciler stops counting the line immediately.
func DeleteDemand(ctx context.Context, id int) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return ErrBusinessIdRequired
	}
	if err := utils.ValidateResourceId[Demand](ctx, businessId, id); err != nil {
		return err
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND id = ?", businessId, id).Delete(&Demand{}).Error; err != nil {
			return err
		}
		return PublishEvent(ctx, tx, businessId, time.Now().UTC(), id, EventReferenceTypeDemand, EventTypeDemandChanged, nil)
	})
}

// ListOpenDemands returns non-deleted demand lines ordered by priority then age.
func ListOpenDemands(ctx context.Context) ([]*Demand, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}

	var demands []*Demand
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("priority DESC, created_at ASC").
		Find(&demands).Error; err != nil {
		return nil, err
	}
	return demands, nil
}
