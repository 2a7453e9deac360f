package workflow

import (
	"context"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

// DemandSnapshot is the point-in-time ledger view one demand line is
// classified from.
type DemandSnapshot struct {
	QuantityRequested int `json:"quantity_requested"`
	InProcess         int `json:"in_process"`
	StockOnHand       int `json:"stock_on_hand"`
	LossTotal         int `json:"loss_total"`
}

// Remaining is the quantity not yet accounted for by work in process, stock,
// or written-off loss. Never negative.
func (s DemandSnapshot) Remaining() int {
	remaining := s.QuantityRequested - (s.InProcess + s.StockOnHand + s.LossTotal)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ClassifyDemand is a pure function of the snapshot. Evaluation order matters:
// pending wins over divergent, divergent over completed.
func ClassifyDemand(s DemandSnapshot) models.DemandStatus {
	if s.Remaining() > 0 || s.InProcess > 0 {
		return models.DemandStatusPending
	}
	if s.LossTotal > 0 && s.StockOnHand < s.QuantityRequested {
		return models.DemandStatusDivergent
	}
	return models.DemandStatusCompleted
}

// DemandDiagnostic is one reconciled demand line with the balance breakdown
// the planning UI renders.
type DemandDiagnostic struct {
	Demand           *models.Demand      `json:"demand"`
	CuttingBalance   int                 `json:"cutting_balance"`
	SewingBalance    int                 `json:"sewing_balance"`
	FinishingBacklog int                 `json:"finishing_backlog"`
	PackagingBacklog int                 `json:"packaging_backlog"`
	Snapshot         DemandSnapshot      `json:"snapshot"`
	Remaining        int                 `json:"remaining"`
	Status           models.DemandStatus `json:"status"`
}

// ListDemandDiagnostics reconciles every open demand line against the current
// ledger snapshot. Read-only and idempotent; nothing is written back.
func ListDemandDiagnostics(ctx context.Context) ([]*DemandDiagnostic, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}

	demands, err := models.ListOpenDemands(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB().WithContext(ctx)
	diagnostics := make([]*DemandDiagnostic, 0, len(demands))
	for _, demand := range demands {
		diag, err := reconcileDemand(ctx, db, businessId, demand)
		if err != nil {
			return nil, err
		}
		diagnostics = append(diagnostics, diag)
	}
	return diagnostics, nil
}

func reconcileDemand(ctx context.Context, db *gorm.DB, businessId string, demand *models.Demand) (*DemandDiagnostic, error) {
	key := demand.ProductVariantKey

	cutting, err := AvailableAt(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	sewing, err := sewingBalance(db, businessId, key)
	if err != nil {
		return nil, err
	}

	finishingRows, err := finishingOrderBacklogs(db, businessId, key)
	if err != nil {
		return nil, err
	}
	finishing := 0
	for _, b := range finishingRows {
		finishing += b.Backlog
	}

	packagingRows, err := packagingOrderBacklogs(db, businessId, key)
	if err != nil {
		return nil, err
	}
	packaging := 0
	for _, b := range packagingRows {
		packaging += b.Backlog
	}

	stock, err := models.GetStockOnHand(ctx, key)
	if err != nil {
		return nil, err
	}
	loss, err := models.SumLossForKey(db, businessId, key)
	if err != nil {
		return nil, err
	}

	snapshot := DemandSnapshot{
		QuantityRequested: demand.QuantityRequested,
		InProcess:         cutting + sewing + finishing + packaging,
		StockOnHand:       stock,
		LossTotal:         loss,
	}
	return &DemandDiagnostic{
		Demand:           demand,
		CuttingBalance:   cutting,
		SewingBalance:    sewing,
		FinishingBacklog: finishing,
		PackagingBacklog: packaging,
		Snapshot:         snapshot,
		Remaining:        snapshot.Remaining(),
		Status:           ClassifyDemand(snapshot),
	}, nil
}

// sewingBalance totals quantity inside producing orders' stage pipelines for
// one key: entered at stage 0 but not yet through each order's last stage.
// Finalized orders contribute nothing; their shortfall lives in loss records.
func sewingBalance(db *gorm.DB, businessId string, key models.ProductVariantKey) (int, error) {
	var orders []models.ProductionOrder
	if err := db.Preload("Stages").
		Where("business_id = ? AND product_id = ? AND variant_label = ? AND status = ?",
			businessId, key.ProductId, key.VariantLabel, models.ProductionOrderStatusProducing).
		Find(&orders).Error; err != nil {
		return 0, err
	}

	total := 0
	for i := range orders {
		last := orders[i].LastStageIndex()
		if last < 0 {
			continue
		}
		totals, err := models.SumStageEntries(db, businessId, orders[i].ID)
		if err != nil {
			return 0, err
		}
		total += totals[0] - totals[last]
	}
	return total, nil
}
