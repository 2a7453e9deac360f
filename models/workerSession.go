package models

import (
	"time"

	"gorm.io/gorm"
)

// WorkerSession is a time-bounded assignment of queue quantity to one worker.
// An Active session reserves quantity without touching the ledgers; the ledger
// write happens at FinalizeWorkerSession, and Cancel releases the reservation
// unchanged.
type WorkerSession struct {
	ID                int                 `gorm:"primary_key" json:"id"`
	BusinessId        string              `gorm:"size:64;index;not null" json:"business_id"`
	WorkerId          int                 `gorm:"index:idx_ws_worker,priority:1;not null" json:"worker_id"`
	ProductVariantKey `gorm:"embedded" json:"key"`
	QueueStage        QueueStage          `gorm:"type:enum('Finishing','Packaging');not null;index" json:"queue_stage"`
	QuantityAssigned  int                 `gorm:"not null" json:"quantity_assigned"`
	QuantityCompleted *int                `json:"quantity_completed"`
	Status            WorkerSessionStatus `gorm:"type:enum('Active','Completed','Cancelled');default:'Active';index:idx_ws_worker,priority:2" json:"status"`
	StartedAt         time.Time           `gorm:"index;not null" json:"started_at"`
	EndedAt           *time.Time          `json:"ended_at"`
	CorrelationId     string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// SumActiveReservations totals quantity held by Active sessions for one
// key/queue. Worker sessions are the reservation ledger: availability shown to
// assignment is queue backlog minus this sum.
func SumActiveReservations(tx *gorm.DB, businessId string, key ProductVariantKey, queueStage QueueStage) (int, error) {
	var total int
	if err := tx.Model(&WorkerSession{}).
		Select("COALESCE(SUM(quantity_assigned), 0)").
		Where("business_id = ? AND product_id = ? AND variant_label = ? AND queue_stage = ? AND status = ?",
			businessId, key.ProductId, key.VariantLabel, queueStage, WorkerSessionStatusActive).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// HasActiveSession reports whether the worker already holds an active session
// for the same key/queue. At most one is allowed.
func HasActiveSession(tx *gorm.DB, businessId string, workerId int, key ProductVariantKey, queueStage QueueStage) (bool, error) {
	var count int64
	if err := tx.Model(&WorkerSession{}).
		Where("business_id = ? AND worker_id = ? AND product_id = ? AND variant_label = ? AND queue_stage = ? AND status = ?",
			businessId, workerId, key.ProductId, key.VariantLabel, queueStage, WorkerSessionStatusActive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
