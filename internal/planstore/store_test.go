package planstore

import (
	"path/filepath"
	"testing"

	"github.com/stackmesh/runboard/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPlan() *domain.Plan {
	return &domain.Plan{
		Spec: "checkout-refactor",
		Batches: []domain.PlanBatch{
			{ID: "b1", Name: "Stage 1", Tasks: []string{"t1", "t2"}, Model: "sonnet", EstimatedCost: 1.5, EstimatedMins: 10},
			{ID: "b2", Name: "Stage 2", Tasks: []string{"t3"}, DependsOn: []string{"b1"}, Model: "haiku"},
		},
	}
}

func TestStore_SaveAndGetPlan(t *testing.T) {
	s := testStore(t)

	if err := s.SavePlan(testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	got, err := s.GetPlan("checkout-refactor")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got == nil {
		t.Fatal("GetPlan returned nil for cached spec")
	}
	if len(got.Batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(got.Batches))
	}
	// Plan order survives the round trip
	if got.Batches[0].ID != "b1" || got.Batches[1].ID != "b2" {
		t.Errorf("order = %s, %s", got.Batches[0].ID, got.Batches[1].ID)
	}
	if len(got.Batches[0].Tasks) != 2 {
		t.Errorf("b1 tasks = %v", got.Batches[0].Tasks)
	}
	if got.Batches[1].DependsOn[0] != "b1" {
		t.Errorf("b2 deps = %v", got.Batches[1].DependsOn)
	}
	if got.Batches[0].EstimatedCost != 1.5 {
		t.Errorf("b1 cost = %v", got.Batches[0].EstimatedCost)
	}
}

func TestStore_SavePlanReplacesBatches(t *testing.T) {
	s := testStore(t)

	if err := s.SavePlan(testPlan()); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	updated := &domain.Plan{
		Spec:    "checkout-refactor",
		Batches: []domain.PlanBatch{{ID: "b9", Name: "Rewritten"}},
	}
	if err := s.SavePlan(updated); err != nil {
		t.Fatalf("SavePlan (update): %v", err)
	}

	got, err := s.GetPlan("checkout-refactor")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(got.Batches) != 1 || got.Batches[0].ID != "b9" {
		t.Errorf("batches after replace = %+v", got.Batches)
	}
}

func TestStore_GetPlanMissing(t *testing.T) {
	s := testStore(t)

	got, err := s.GetPlan("ghost")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got != nil {
		t.Errorf("GetPlan(ghost) = %+v, want nil", got)
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	s := testStore(t)

	s.SavePlan(testPlan())
	s.SavePlan(&domain.Plan{Spec: "auth-hardening"})

	specs, err := s.ListSpecs()
	if err != nil {
		t.Fatalf("ListSpecs: %v", err)
	}
	if len(specs) != 2 || specs[0] != "auth-hardening" {
		t.Errorf("specs = %v", specs)
	}

	if err := s.DeletePlan("checkout-refactor"); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}
	got, _ := s.GetPlan("checkout-refactor")
	if got != nil {
		t.Error("plan still cached after delete")
	}

	ts, err := s.FetchedAt("auth-hardening")
	if err != nil {
		t.Fatalf("FetchedAt: %v", err)
	}
	if ts.IsZero() {
		t.Error("FetchedAt should be set for cached plan")
	}
}
