package workflow

import (
	"testing"

	"github.com/mmdatafocus/factory_backend/models"
)

func TestOrderStageAvailability_StageZeroDrawsFromCut(t *testing.T) {
	totals := models.StageTotals{0: 30}
	if got := OrderStageAvailability(100, totals, 0); got != 70 {
		t.Fatalf("expected 70, got %d", got)
	}
}

func TestOrderStageAvailability_LaterStageDrawsFromPrevious(t *testing.T) {
	totals := models.StageTotals{0: 80, 1: 50, 2: 50}
	if got := OrderStageAvailability(100, totals, 1); got != 30 {
		t.Fatalf("stage 1: expected 30, got %d", got)
	}
	if got := OrderStageAvailability(100, totals, 2); got != 0 {
		t.Fatalf("stage 2: expected 0, got %d", got)
	}
	if got := OrderStageAvailability(100, totals, 3); got != 50 {
		t.Fatalf("stage 3: expected 50, got %d", got)
	}
}

func TestOrderStageAvailability_MissingStagesReadAsZero(t *testing.T) {
	totals := models.StageTotals{}
	if got := OrderStageAvailability(40, totals, 0); got != 40 {
		t.Fatalf("stage 0 of untouched order: expected 40, got %d", got)
	}
	if got := OrderStageAvailability(40, totals, 2); got != 0 {
		t.Fatalf("downstream stage of untouched order: expected 0, got %d", got)
	}
}

// A fully drained pipeline leaves zero availability at every stage.
func TestOrderStageAvailability_DrainedPipeline(t *testing.T) {
	totals := models.StageTotals{0: 25, 1: 25, 2: 25}
	for stage := 0; stage < 3; stage++ {
		if got := OrderStageAvailability(25, totals, stage); got != 0 {
			t.Fatalf("stage %d: expected 0, got %d", stage, got)
		}
	}
}
