package models

import "testing"

func TestShortfallAtFinalize(t *testing.T) {
	cases := []struct {
		name           string
		target         int
		lastStageTotal int
		want           int
	}{
		{"partial completion", 100, 80, 20},
		{"exact completion", 100, 100, 0},
		{"overproduction clamps to zero", 100, 104, 0},
		{"nothing at last stage", 100, 0, 100},
	}
	for _, tc := range cases {
		if got := ShortfallAtFinalize(tc.target, tc.lastStageTotal); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestReadyToFinalize(t *testing.T) {
	cases := []struct {
		name       string
		stageCount int
		totals     StageTotals
		want       bool
	}{
		{"all stages touched", 3, StageTotals{0: 50, 1: 40, 2: 30}, true},
		{"last stage empty", 3, StageTotals{0: 50, 1: 40}, false},
		{"middle stage empty", 3, StageTotals{0: 50, 2: 30}, false},
		{"single stage with entries", 1, StageTotals{0: 10}, true},
		{"no stages", 0, StageTotals{}, false},
		{"untouched order", 3, StageTotals{}, false},
	}
	for _, tc := range cases {
		if got := ReadyToFinalize(tc.stageCount, tc.totals); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestLastStageIndex(t *testing.T) {
	op := &ProductionOrder{Stages: []ProductionOrderStage{
		{StageIndex: 0, Name: "Sewing"},
		{StageIndex: 1, Name: "Assembly"},
	}}
	if got := op.LastStageIndex(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}

	empty := &ProductionOrder{}
	if got := empty.LastStageIndex(); got != -1 {
		t.Fatalf("expected -1 for stageless order, got %d", got)
	}
}
