package domain

import "testing"

const samplePlan = `
spec: checkout-refactor
batches:
  - id: b1
    name: "Stage b1 — schema"
    tasks: [t1, t2]
    model: sonnet
    estimated_cost: 1.25
    estimated_minutes: 12
  - id: b2
    tasks: [t3]
    depends_on: [b1]
    model: haiku
    estimated_cost: 0.4
`

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan([]byte(samplePlan))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}

	if plan.Spec != "checkout-refactor" {
		t.Errorf("Spec = %q, want checkout-refactor", plan.Spec)
	}
	if len(plan.Batches) != 2 {
		t.Fatalf("batch count = %d, want 2", len(plan.Batches))
	}
	if plan.Batches[1].DependsOn[0] != "b1" {
		t.Errorf("b2 depends_on = %v, want [b1]", plan.Batches[1].DependsOn)
	}
}

func TestParsePlan_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "batches:\n  - name: no-id\n"},
		{"duplicate id", "batches:\n  - id: a\n  - id: a\n"},
		{"unknown dependency", "batches:\n  - id: a\n    depends_on: [ghost]\n"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePlan([]byte(tt.yaml)); err == nil {
				t.Error("ParsePlan succeeded, want error")
			}
		})
	}
}

func TestPlan_ToBatches(t *testing.T) {
	plan, err := ParsePlan([]byte(samplePlan))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}

	batches := plan.ToBatches()
	if batches[0].Name != "Stage b1 — schema" {
		t.Errorf("b1 name = %q", batches[0].Name)
	}
	// Name defaults to id when omitted
	if batches[1].Name != "b2" {
		t.Errorf("b2 name = %q, want b2", batches[1].Name)
	}
}

func TestPlan_TotalEstimatedCost(t *testing.T) {
	plan, _ := ParsePlan([]byte(samplePlan))
	got := plan.TotalEstimatedCost()
	if got < 1.64 || got > 1.66 {
		t.Errorf("TotalEstimatedCost = %v, want 1.65", got)
	}
}

func TestBatchStatus_Rank(t *testing.T) {
	order := []BatchStatus{BatchPending, BatchWaiting, BatchRunning, BatchCompleted}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s rank %d not above %s rank %d",
				order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	if BatchFailed.Rank() != BatchCompleted.Rank() {
		t.Errorf("failed and completed should share terminal rank")
	}
}

func TestRunStatus_Predicates(t *testing.T) {
	for _, s := range []RunStatus{RunCompleted, RunFailed, RunAborted} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
		if s.Active() {
			t.Errorf("%s.Active() = true, want false", s)
		}
	}
	for _, s := range []RunStatus{RunStarting, RunRunning, RunReconnecting} {
		if !s.Active() {
			t.Errorf("%s.Active() = false, want true", s)
		}
	}
	if RunIdle.Terminal() || RunIdle.Active() {
		t.Error("idle should be neither terminal nor active")
	}
}
