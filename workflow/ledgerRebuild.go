package workflow

import (
	"fmt"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func acquireLedgerRebuildLock(tx *gorm.DB, businessId string, key models.ProductVariantKey) error {
	lockName := fmt.Sprintf("ledger_rebuild:%s:%d:%s", businessId, key.ProductId, key.VariantLabel)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire rebuild lock for business_id=%s product_id=%d variant=%s",
			businessId, key.ProductId, key.VariantLabel)
	}
	return nil
}

func releaseLedgerRebuildLock(tx *gorm.DB, businessId string, key models.ProductVariantKey) {
	lockName := fmt.Sprintf("ledger_rebuild:%s:%d:%s", businessId, key.ProductId, key.VariantLabel)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// RebuildStockSummaryForKey recomputes one key's stock summary from the
// append-only ledgers (cut batches, finishing records, stock movements).
// Summaries are a projection; the ledgers stay untouched.
func RebuildStockSummaryForKey(tx *gorm.DB, logger *logrus.Logger, businessId string, key models.ProductVariantKey) error {
	if tx == nil {
		return fmt.Errorf("rebuild ledger: tx is nil")
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	if businessId == "" || key.ProductId <= 0 {
		return fmt.Errorf("rebuild ledger: invalid scope")
	}

	if err := acquireLedgerRebuildLock(tx, businessId, key); err != nil {
		return err
	}
	defer releaseLedgerRebuildLock(tx, businessId, key)

	keyScope := func(q *gorm.DB) *gorm.DB {
		return q.Where("business_id = ? AND product_id = ? AND variant_label = ?",
			businessId, key.ProductId, key.VariantLabel)
	}

	var cutQty int
	if err := keyScope(tx.Model(&models.CutBatch{})).
		Select("COALESCE(SUM(quantity), 0)").Scan(&cutQty).Error; err != nil {
		return err
	}
	var finishedQty int
	if err := keyScope(tx.Model(&models.FinishingRecord{})).
		Select("COALESCE(SUM(quantity_finished), 0)").Scan(&finishedQty).Error; err != nil {
		return err
	}
	var packagedQty int
	if err := keyScope(tx.Model(&models.FinishingRecord{})).
		Select("COALESCE(SUM(quantity_packaged), 0)").Scan(&packagedQty).Error; err != nil {
		return err
	}
	var currentQty int
	if err := keyScope(tx.Model(&models.StockMovement{})).
		Select("COALESCE(SUM(qty_delta), 0)").Scan(&currentQty).Error; err != nil {
		return err
	}

	summary, err := models.FirstOrCreateStockSummary(tx, businessId, key)
	if err != nil {
		return err
	}
	if err := tx.Model(&models.StockSummary{}).
		Where("id = ?", summary.ID).
		Updates(map[string]interface{}{
			"cut_qty":      cutQty,
			"finished_qty": finishedQty,
			"packaged_qty": packagedQty,
			"current_qty":  currentQty,
		}).Error; err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"business_id":   businessId,
		"product_id":    key.ProductId,
		"variant_label": key.VariantLabel,
		"cut_qty":       cutQty,
		"finished_qty":  finishedQty,
		"packaged_qty":  packagedQty,
		"current_qty":   currentQty,
	}).Info("stock summary rebuilt")
	return nil
}

// RebuildStockSummariesForBusiness rebuilds every key a business has touched.
func RebuildStockSummariesForBusiness(tx *gorm.DB, logger *logrus.Logger, businessId string) (int, error) {
	var keys []models.ProductVariantKey
	if err := tx.Model(&models.CutBatch{}).
		Select("DISTINCT product_id, variant_label").
		Where("business_id = ?", businessId).
		Scan(&keys).Error; err != nil {
		return 0, err
	}

	for _, key := range keys {
		if err := RebuildStockSummaryForKey(tx, logger, businessId, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
