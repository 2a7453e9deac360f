package workflow

import (
	"testing"

	"github.com/mmdatafocus/factory_backend/models"
)

func TestOrderCutConsumption_LiveOrderHoldsFullCut(t *testing.T) {
	row := batchOrderConsumption{
		Status:         models.ProductionOrderStatusProducing,
		CutQuantity:    60,
		StageZeroTotal: 25,
	}
	if got := orderCutConsumption(row); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
}

func TestOrderCutConsumption_CancelledUntouchedOrderReleasesAll(t *testing.T) {
	row := batchOrderConsumption{
		Status:         models.ProductionOrderStatusCancelled,
		CutQuantity:    60,
		StageZeroTotal: 0,
	}
	if got := orderCutConsumption(row); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestOrderCutConsumption_CancelledOrderKeepsEnteredCutConsumed(t *testing.T) {
	row := batchOrderConsumption{
		Status:         models.ProductionOrderStatusCancelled,
		CutQuantity:    60,
		StageZeroTotal: 40,
	}
	if got := orderCutConsumption(row); got != 40 {
		t.Fatalf("expected 40, got %d", got)
	}
}

// Cancelling an order that already entered its whole cut at stage 0 must not
// reopen the batch: a follow-up order of the full batch size would push the
// key's stage-0 balance below zero.
func TestSumBatchConsumption_CancelAfterFullEntryLeavesNoRemainder(t *testing.T) {
	batchQuantity := 100
	rows := []batchOrderConsumption{
		{Status: models.ProductionOrderStatusCancelled, CutQuantity: 100, StageZeroTotal: 100},
	}
	if remainder := batchQuantity - sumBatchConsumption(rows); remainder != 0 {
		t.Fatalf("expected remainder 0, got %d", remainder)
	}
}

// After a partial-entry cancel, the released quantity plus every order's
// stage-0 entries can never exceed the batch quantity.
func TestSumBatchConsumption_PartialEntryCancelReleasesOnlyTheRest(t *testing.T) {
	batchQuantity := 100
	rows := []batchOrderConsumption{
		{Status: models.ProductionOrderStatusCancelled, CutQuantity: 100, StageZeroTotal: 40},
	}
	remainder := batchQuantity - sumBatchConsumption(rows)
	if remainder != 60 {
		t.Fatalf("expected remainder 60, got %d", remainder)
	}

	// A replacement order takes the remainder and enters all of it.
	rows = append(rows, batchOrderConsumption{
		Status:         models.ProductionOrderStatusProducing,
		CutQuantity:    remainder,
		StageZeroTotal: remainder,
	})
	entered := 0
	for _, row := range rows {
		entered += row.StageZeroTotal
	}
	if entered > batchQuantity {
		t.Fatalf("stage-0 entries %d exceed batch quantity %d", entered, batchQuantity)
	}
	if remainder = batchQuantity - sumBatchConsumption(rows); remainder != 0 {
		t.Fatalf("expected drained batch, got remainder %d", remainder)
	}
}

func TestSumBatchConsumption_MixedOrders(t *testing.T) {
	rows := []batchOrderConsumption{
		{Status: models.ProductionOrderStatusProducing, CutQuantity: 30, StageZeroTotal: 10},
		{Status: models.ProductionOrderStatusFinalized, CutQuantity: 40, StageZeroTotal: 40},
		{Status: models.ProductionOrderStatusCancelled, CutQuantity: 20, StageZeroTotal: 5},
	}
	if got := sumBatchConsumption(rows); got != 75 {
		t.Fatalf("expected 75, got %d", got)
	}
}
