package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CutBatch is the initial quantity injection cut from raw material, the source
// of stage-0 balance for its key. Immutable once created; orders reference it,
// never mutate it.
type CutBatch struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"size:64;index;not null" json:"business_id"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	Quantity          int             `gorm:"not null" json:"quantity"`
	FabricUsed        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fabric_used"`
	CutDate           time.Time       `gorm:"index;not null" json:"cut_date"`
	OriginLabel       string          `gorm:"size:100" json:"origin_label"`
	DemandId          *int            `gorm:"index" json:"demand_id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewCutBatch struct {
	ProductId    int             `json:"product_id" binding:"required"`
	VariantLabel string          `json:"variant_label"`
	Quantity     int             `json:"quantity" binding:"required,gt=0"`
	FabricUsed   decimal.Decimal `json:"fabric_used"`
	CutDate      time.Time       `json:"cut_date" binding:"required"`
	OriginLabel  string          `json:"origin_label"`
	DemandId     *int            `json:"demand_id"`
}
