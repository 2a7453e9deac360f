package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/utils"
)

type Business struct {
	ID          uuid.UUID `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName string    `gorm:"size:100" json:"contact_name"`
	Email       string    `gorm:"size:255" json:"email"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Address     string    `gorm:"type:text" json:"address"`
	Timezone    string    `gorm:"size:50" json:"timezone"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name        string `json:"name" binding:"required"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Timezone    string `json:"timezone"`
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	db := config.GetDB()

	business := Business{
		ID:          uuid.New(),
		Name:        input.Name,
		ContactName: input.ContactName,
		Email:       input.Email,
		Phone:       input.Phone,
		Address:     input.Address,
		Timezone:    input.Timezone,
		IsActive:    utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}

	// Every business starts its OP numbering at zero.
	series := OrderNumberSeries{BusinessId: business.ID.String(), LastNumber: 0}
	if err := db.WithContext(ctx).Create(&series).Error; err != nil {
		return nil, err
	}

	return &business, nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	var business *Business
	exists, err := config.GetRedisObject("Business:"+businessId, &business)
	if err == nil && exists && business != nil {
		return business, nil
	}

	business = &Business{}
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(business).Error; err != nil {
		return nil, err
	}
	_ = config.SetRedisObject("Business:"+businessId, business, 0)
	return business, nil
}
