package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockMovement is the append-only stock ledger. Packaging completion emits a
// positive movement into stock; manual adjustments use ADJ rows. Movements are
// the ledger of record; stock_summaries is the rebuildable projection.
type StockMovement struct {
	ID                string            `gorm:"size:36;primary_key" json:"id"` // uuid
	BusinessId        string            `gorm:"size:64;index:idx_stock_move,priority:1;not null" json:"business_id"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	QtyDelta          int               `gorm:"not null" json:"qty_delta"`
	MovementType      StockMovementType `gorm:"type:enum('PKG','ADJ');default:'PKG'" json:"movement_type"`
	ReferenceId       int               `gorm:"index" json:"reference_id"`
	EffectiveDate     time.Time         `gorm:"index:idx_stock_move,priority:2;not null" json:"effective_date"`
	CorrelationId     string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// StockSummary is the per-key projection of the production flow: cumulative
// cut, finished and packaged quantities plus current stock on hand.
type StockSummary struct {
	ID                int       `gorm:"primary_key" json:"id"`
	BusinessId        string    `gorm:"index:idx_stock_summary,unique,priority:1;not null" json:"business_id"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	CutQty            int       `gorm:"not null;default:0" json:"cut_qty"`
	FinishedQty       int       `gorm:"not null;default:0" json:"finished_qty"`
	PackagedQty       int       `gorm:"not null;default:0" json:"packaged_qty"`
	CurrentQty        int       `gorm:"not null;default:0" json:"current_qty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateStockSummary finds (FOR UPDATE) or creates the summary row for a key.
func FirstOrCreateStockSummary(tx *gorm.DB, businessId string, key ProductVariantKey) (*StockSummary, error) {
	summary := StockSummary{
		BusinessId:        businessId,
		ProductVariantKey: key,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND product_id = ? AND variant_label = ?", businessId, key.ProductId, key.VariantLabel).
		FirstOrCreate(&summary)
	if result.Error != nil {
		return nil, result.Error
	}
	return &summary, nil
}

func UpdateStockSummaryCutQty(tx *gorm.DB, businessId string, key ProductVariantKey, quantity int) error {
	summary, err := FirstOrCreateStockSummary(tx, businessId, key)
	if err != nil {
		return err
	}
	return tx.Exec("UPDATE stock_summaries SET cut_qty = cut_qty + ? WHERE id = ?", quantity, summary.ID).Error
}

func UpdateStockSummaryFinishedQty(tx *gorm.DB, businessId string, key ProductVariantKey, quantity int) error {
	summary, err := FirstOrCreateStockSummary(tx, businessId, key)
	if err != nil {
		return err
	}
	return tx.Exec("UPDATE stock_summaries SET finished_qty = finished_qty + ? WHERE id = ?", quantity, summary.ID).Error
}

// UpdateStockSummaryPackagedQty bumps packaged quantity and stock on hand together.
func UpdateStockSummaryPackagedQty(tx *gorm.DB, businessId string, key ProductVariantKey, quantity int) error {
	summary, err := FirstOrCreateStockSummary(tx, businessId, key)
	if err != nil {
		return err
	}
	return tx.Exec("UPDATE stock_summaries SET packaged_qty = packaged_qty + ?, current_qty = current_qty + ? WHERE id = ?", quantity, quantity, summary.ID).Error
}

// AppendStockMovement writes one ledger row. Callers bump the summary themselves
// inside the same transaction.
func AppendStockMovement(ctx context.Context, tx *gorm.DB, businessId string, key ProductVariantKey, qtyDelta int, movementType StockMovementType, referenceId int, effectiveDate time.Time) (*StockMovement, error) {
	movement := StockMovement{
		ID:                uuid.NewString(),
		BusinessId:        businessId,
		ProductVariantKey: key,
		QtyDelta:          qtyDelta,
		MovementType:      movementType,
		ReferenceId:       referenceId,
		EffectiveDate:     effectiveDate,
		CorrelationId:     correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// GetStockOnHand returns current stock for a key (0 when no summary row exists).
func GetStockOnHand(ctx context.Context, key ProductVariantKey) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, ErrBusinessIdRequired
	}

	var currentQty int
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&StockSummary{}).
		Select("COALESCE(SUM(current_qty), 0)").
		Where("business_id = ? AND product_id = ? AND variant_label = ?", businessId, key.ProductId, key.VariantLabel).
		Scan(&currentQty).Error; err != nil {
		return 0, err
	}
	return currentQty, nil
}
