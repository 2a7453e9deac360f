package workflow

import (
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/factory_backend/models"
)

// fakeOrderBook mirrors the finalize posting without a database: the status
// check, the single loss row on shortfall, and the terminal flip all happen
// under one lock, the way runPostingTx serializes postings per business.
type fakeOrderBook struct {
	mu         sync.Mutex
	orders     map[int]*models.ProductionOrder
	lastTotals map[int]int // order id -> last-stage entry total
	losses     []models.LossRecord
}

func newFakeOrderBook() *fakeOrderBook {
	return &fakeOrderBook{
		orders:     map[int]*models.ProductionOrder{},
		lastTotals: map[int]int{},
	}
}

func (b *fakeOrderBook) addProducing(id, target, lastTotal int) {
	b.orders[id] = &models.ProductionOrder{
		TargetQuantity: target,
		Status:         models.ProductionOrderStatusProducing,
	}
	b.lastTotals[id] = lastTotal
}

func (b *fakeOrderBook) finalize(orderId int, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order := b.orders[orderId]
	switch order.Status {
	case models.ProductionOrderStatusFinalized:
		return ErrAlreadyFinalized
	case models.ProductionOrderStatusCancelled:
		return ErrAlreadyCancelled
	}

	lastTotal := b.lastTotals[orderId]
	if lastTotal == 0 {
		return ErrNotReadyToFinalize
	}

	shortfall := models.ShortfallAtFinalize(order.TargetQuantity, lastTotal)
	if shortfall > 0 {
		b.losses = append(b.losses, models.LossRecord{
			OrderId:  orderId,
			Quantity: shortfall,
			Reason:   reason,
		})
	}
	order.Status = models.ProductionOrderStatusFinalized
	order.Divergent = shortfall > 0
	return nil
}

func (b *fakeOrderBook) lossRowsFor(orderId int) []models.LossRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []models.LossRecord
	for _, loss := range b.losses {
		if loss.OrderId == orderId {
			rows = append(rows, loss)
		}
	}
	return rows
}

func TestFinalizeOrder_RetryFailsWithoutSecondLossRow(t *testing.T) {
	book := newFakeOrderBook()
	book.addProducing(1, 100, 80)

	if err := book.finalize(1, "fabric damage"); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	rows := book.lossRowsFor(1)
	if len(rows) != 1 {
		t.Fatalf("expected 1 loss row, got %d", len(rows))
	}
	if rows[0].Quantity != 20 {
		t.Fatalf("expected loss quantity 20, got %d", rows[0].Quantity)
	}
	if !book.orders[1].Divergent {
		t.Fatal("expected order marked divergent")
	}

	if err := book.finalize(1, "fabric damage"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if rows := book.lossRowsFor(1); len(rows) != 1 {
		t.Fatalf("retry wrote a second loss row: %d rows", len(rows))
	}
}

func TestFinalizeOrder_ExactProductionWritesNoLossRow(t *testing.T) {
	book := newFakeOrderBook()
	book.addProducing(2, 50, 50)

	if err := book.finalize(2, ""); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if rows := book.lossRowsFor(2); len(rows) != 0 {
		t.Fatalf("expected no loss rows, got %d", len(rows))
	}
	if book.orders[2].Divergent {
		t.Fatal("exact production must not be divergent")
	}
}

func TestFinalizeOrder_ConcurrentRetriesWriteOneLossRow(t *testing.T) {
	book := newFakeOrderBook()
	book.addProducing(3, 100, 90)

	const attempts = 25
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := book.finalize(3, "recount"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	won := 0
	for range successes {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 successful finalize, got %d", won)
	}
	if rows := book.lossRowsFor(3); len(rows) != 1 {
		t.Fatalf("expected 1 loss row, got %d", len(rows))
	}
}
