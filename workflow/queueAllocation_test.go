package workflow

import (
	"errors"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestAllocateFIFO_DrainsOldestOrderFirst(t *testing.T) {
	backlogs := []QueueOrderBacklog{
		{OrderId: 11, OrderNumber: 1, EntryDate: day(1), Backlog: 4},
		{OrderId: 12, OrderNumber: 2, EntryDate: day(2), Backlog: 6},
		{OrderId: 13, OrderNumber: 3, EntryDate: day(3), Backlog: 5},
	}

	allocations, err := AllocateFIFO(backlogs, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d: %+v", len(allocations), allocations)
	}
	if allocations[0].OrderId != 11 || allocations[0].Quantity != 4 {
		t.Fatalf("oldest order not drained first: %+v", allocations[0])
	}
	if allocations[1].OrderId != 12 || allocations[1].Quantity != 3 {
		t.Fatalf("second order should take the remainder: %+v", allocations[1])
	}
}

func TestAllocateFIFO_ExactDrainStopsAtBoundary(t *testing.T) {
	backlogs := []QueueOrderBacklog{
		{OrderId: 21, EntryDate: day(1), Backlog: 5},
		{OrderId: 22, EntryDate: day(2), Backlog: 5},
	}

	allocations, err := AllocateFIFO(backlogs, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 1 {
		t.Fatalf("exact drain should not touch the next order: %+v", allocations)
	}
	if allocations[0].OrderId != 21 || allocations[0].Quantity != 5 {
		t.Fatalf("unexpected allocation: %+v", allocations[0])
	}
}

func TestAllocateFIFO_SkipsZeroBacklogRows(t *testing.T) {
	backlogs := []QueueOrderBacklog{
		{OrderId: 31, EntryDate: day(1), Backlog: 0},
		{OrderId: 32, EntryDate: day(2), Backlog: 3},
	}

	allocations, err := AllocateFIFO(backlogs, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 1 || allocations[0].OrderId != 32 {
		t.Fatalf("zero-backlog row should be skipped: %+v", allocations)
	}
}

func TestAllocateFIFO_OverdrawFails(t *testing.T) {
	backlogs := []QueueOrderBacklog{
		{OrderId: 41, EntryDate: day(1), Backlog: 4},
		{OrderId: 42, EntryDate: day(2), Backlog: 2},
	}

	if _, err := AllocateFIFO(backlogs, 7); !errors.Is(err, ErrInsufficientUpstream) {
		t.Fatalf("expected ErrInsufficientUpstream, got %v", err)
	}
}

func TestAllocateFIFO_NonPositiveQuantityFails(t *testing.T) {
	backlogs := []QueueOrderBacklog{{OrderId: 51, EntryDate: day(1), Backlog: 10}}

	for _, quantity := range []int{0, -3} {
		if _, err := AllocateFIFO(backlogs, quantity); !errors.Is(err, ErrInsufficientUpstream) {
			t.Fatalf("quantity=%d expected ErrInsufficientUpstream, got %v", quantity, err)
		}
	}
}

// The sum of allocations always equals the requested quantity and no order is
// drained past its own backlog.
func TestAllocateFIFO_ConservesQuantity(t *testing.T) {
	backlogs := []QueueOrderBacklog{
		{OrderId: 61, EntryDate: day(1), Backlog: 3},
		{OrderId: 62, EntryDate: day(2), Backlog: 8},
		{OrderId: 63, EntryDate: day(3), Backlog: 1},
		{OrderId: 64, EntryDate: day(4), Backlog: 4},
	}
	byOrder := map[int]int{}
	for _, b := range backlogs {
		byOrder[b.OrderId] = b.Backlog
	}

	for quantity := 1; quantity <= 16; quantity++ {
		allocations, err := AllocateFIFO(backlogs, quantity)
		if err != nil {
			t.Fatalf("quantity=%d unexpected error: %v", quantity, err)
		}
		total := 0
		for _, a := range allocations {
			if a.Quantity > byOrder[a.OrderId] {
				t.Fatalf("quantity=%d order %d overdrained: %+v", quantity, a.OrderId, a)
			}
			total += a.Quantity
		}
		if total != quantity {
			t.Fatalf("quantity=%d allocations sum to %d: %+v", quantity, total, allocations)
		}
	}
}
