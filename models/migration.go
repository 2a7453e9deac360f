package models

import (
	"log"

	"github.com/mmdatafocus/factory_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &User{},
		&Product{}, &ProductVariant{}, &StageTemplate{},
		&CutBatch{},
		&OrderNumberSeries{}, &ProductionOrder{}, &ProductionOrderStage{},
		&StageEntry{}, &FinishingRecord{}, &LossRecord{},
		&StockMovement{}, &StockSummary{},
		&Demand{},
		&WorkerSession{},
		&OutboxMessageRecord{}, &IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
