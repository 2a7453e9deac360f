package workflow

import (
	"testing"

	"github.com/mmdatafocus/factory_backend/models"
)

func TestClassifyDemand_FullyStockedIsCompleted(t *testing.T) {
	s := DemandSnapshot{QuantityRequested: 10, StockOnHand: 10}
	if got := ClassifyDemand(s); got != models.DemandStatusCompleted {
		t.Fatalf("expected Completed, got %s", got)
	}
}

func TestClassifyDemand_LossShortfallIsDivergent(t *testing.T) {
	s := DemandSnapshot{QuantityRequested: 10, StockOnHand: 6, LossTotal: 4}
	if got := ClassifyDemand(s); got != models.DemandStatusDivergent {
		t.Fatalf("expected Divergent, got %s", got)
	}
}

func TestClassifyDemand_WorkInProcessIsPending(t *testing.T) {
	s := DemandSnapshot{QuantityRequested: 10, InProcess: 3}
	if got := ClassifyDemand(s); got != models.DemandStatusPending {
		t.Fatalf("expected Pending, got %s", got)
	}
}

// Pending wins over divergent: a demand with both loss and open work stays
// pending until the work lands.
func TestClassifyDemand_PendingWinsOverDivergent(t *testing.T) {
	s := DemandSnapshot{QuantityRequested: 10, StockOnHand: 5, LossTotal: 2, InProcess: 3}
	if got := ClassifyDemand(s); got != models.DemandStatusPending {
		t.Fatalf("expected Pending, got %s", got)
	}
}

func TestClassifyDemand_FullyAccountedWithLossIsDivergentNotCompleted(t *testing.T) {
	// Everything accounted for, but loss ate into the requested quantity.
	s := DemandSnapshot{QuantityRequested: 10, StockOnHand: 9, LossTotal: 1}
	if got := ClassifyDemand(s); got != models.DemandStatusDivergent {
		t.Fatalf("expected Divergent, got %s", got)
	}
}

func TestClassifyDemand_LossWithStockAtRequestedIsCompleted(t *testing.T) {
	// Loss happened but stock still covers the full request.
	s := DemandSnapshot{QuantityRequested: 10, StockOnHand: 10, LossTotal: 2}
	if got := ClassifyDemand(s); got != models.DemandStatusCompleted {
		t.Fatalf("expected Completed, got %s", got)
	}
}

func TestDemandSnapshotRemaining(t *testing.T) {
	cases := []struct {
		name string
		s    DemandSnapshot
		want int
	}{
		{"untouched", DemandSnapshot{QuantityRequested: 10}, 10},
		{"partially covered", DemandSnapshot{QuantityRequested: 10, InProcess: 3, StockOnHand: 2}, 5},
		{"exactly covered", DemandSnapshot{QuantityRequested: 10, StockOnHand: 6, LossTotal: 4}, 0},
		{"overcovered clamps to zero", DemandSnapshot{QuantityRequested: 10, StockOnHand: 14}, 0},
	}
	for _, tc := range cases {
		if got := tc.s.Remaining(); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}
