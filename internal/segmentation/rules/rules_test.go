package rules

import (
	"context"
	"testing"
	"time"

	"segmentation_backend/platform/config"
)

func TestCategoryClicksFiresOnExactThreshold(t *testing.T) {
	rs := New(DefaultSettings())

	cases := []struct {
		clicks float64
		want   bool
	}{
		{9, false},
		{10, true},
		{11, false},
	}
	for _, tc := range cases {
		if got := rs.Evaluate(CategoryClicks, tc.clicks); got != tc.want {
			t.Fatalf("clicks %v: expected %v, got %v", tc.clicks, tc.want, got)
		}
	}
}

func TestEngagedWithoutPurchase(t *testing.T) {
	rs := New(DefaultSettings())

	if !rs.EngagedWithoutPurchase(100, 0) {
		t.Fatalf("expected 100 clicks and no purchase to fire")
	}
	if rs.EngagedWithoutPurchase(100, 1) {
		t.Fatalf("expected a purchase to suppress the rule")
	}
	if rs.EngagedWithoutPurchase(99, 0) {
		t.Fatalf("expected 99 clicks not to fire")
	}
	if !rs.EngagedWithoutPurchase(250, 0) {
		t.Fatalf("expected clicks above threshold to fire")
	}
}

func TestHighVolumePurchaserIsStrict(t *testing.T) {
	rs := New(DefaultSettings())

	if rs.Evaluate(HighVolumePurchaser, 10) {
		t.Fatalf("expected 10 purchases not to fire")
	}
	if !rs.Evaluate(HighVolumePurchaser, 11) {
		t.Fatalf("expected 11 purchases to fire")
	}
}

func TestHighClaimsIsStrict(t *testing.T) {
	rs := New(DefaultSettings())

	if rs.Evaluate(HighClaims, 15000) {
		t.Fatalf("expected 15000 not to fire")
	}
	if !rs.Evaluate(HighClaims, 15000.01) {
		t.Fatalf("expected 15000.01 to fire")
	}
}

func TestInactive(t *testing.T) {
	rs := New(DefaultSettings())
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	if rs.Inactive(now.Add(-29*day), now) {
		t.Fatalf("expected 29 days not to be inactive")
	}
	if !rs.Inactive(now.Add(-31*day), now) {
		t.Fatalf("expected 31 days to be inactive")
	}
	if rs.Inactive(time.Time{}, now) {
		t.Fatalf("expected missing login data not to fire")
	}
}

func TestCategorySegment(t *testing.T) {
	rs := New(DefaultSettings())

	cases := map[string]int{
		"Health":   3,
		"Life":     4,
		"Travel":   5,
		"Auto":     7,
		"Business": 6,
		"travel":   5,
		"Pet":      3,
		"":         3,
	}
	for category, want := range cases {
		if got := rs.CategorySegment(category); got != want {
			t.Fatalf("category %q: expected %d, got %d", category, want, got)
		}
	}
}

func TestRulesCatalogueOrder(t *testing.T) {
	rs := New(DefaultSettings())
	want := []RuleID{CategoryClicks, EngagedNoPurchase, HighVolumePurchaser, HighClaims, Inactive}

	got := rs.Rules()
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("rule %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	if rs.Segment(HighClaims) != 9 || rs.Segment(Inactive) != 11 {
		t.Fatalf("unexpected segment ids")
	}
}

type memoryObservations struct {
	values map[string]float64
}

func (m *memoryObservations) LastObservation(_ context.Context, userID, key string) (float64, bool, error) {
	v, ok := m.values[userID+"|"+key]
	return v, ok, nil
}

func (m *memoryObservations) RecordObservation(_ context.Context, userID, key string, value float64, _ time.Time) error {
	m.values[userID+"|"+key] = value
	return nil
}

// decideAndCommit mirrors a caller whose segment write always succeeds.
func decideAndCommit(t *testing.T, gate *Gate, id RuleID, scope string, value float64) bool {
	t.Helper()
	ctx := context.Background()
	d, err := gate.Decide(ctx, "u1", id, scope, value, true)
	if err != nil {
		t.Fatalf("decide %s=%v: %v", id, value, err)
	}
	if err := gate.Commit(ctx, "u1", d, time.Now()); err != nil {
		t.Fatalf("commit %s=%v: %v", id, value, err)
	}
	return d.Fire
}

func TestGateExactModeRefiresEveryTime(t *testing.T) {
	store := &memoryObservations{values: map[string]float64{}}
	gate := NewGate(New(DefaultSettings()), config.TriggerModeExact, store)

	for i := 0; i < 2; i++ {
		if !decideAndCommit(t, gate, HighVolumePurchaser, "", 12) {
			t.Fatalf("run %d: expected fire", i)
		}
	}
	if len(store.values) != 0 {
		t.Fatalf("exact mode should not record observations, got %v", store.values)
	}
}

func TestGateCrossingModeFiresOnce(t *testing.T) {
	gate := NewGate(New(DefaultSettings()), config.TriggerModeCrossing, &memoryObservations{values: map[string]float64{}})

	steps := []struct {
		value float64
		want  bool
	}{
		{5, false},
		{12, true},
		{13, false},
		{9, false},
		{11, true},
	}
	for i, step := range steps {
		if got := decideAndCommit(t, gate, HighVolumePurchaser, "", step.value); got != step.want {
			t.Fatalf("step %d (value %v): expected %v, got %v", i, step.value, step.want, got)
		}
	}
}

func TestGateCrossingUncommittedFireRepeats(t *testing.T) {
	gate := NewGate(New(DefaultSettings()), config.TriggerModeCrossing, &memoryObservations{values: map[string]float64{}})
	ctx := context.Background()

	d, err := gate.Decide(ctx, "u1", HighClaims, "", 20000, true)
	if err != nil || !d.Fire {
		t.Fatalf("expected first crossing to fire, got %v (%v)", d.Fire, err)
	}
	// Not committed: the segment write failed.
	if !decideAndCommit(t, gate, HighClaims, "", 20000) {
		t.Fatal("expected an uncommitted fire to fire again")
	}
	if decideAndCommit(t, gate, HighClaims, "", 21000) {
		t.Fatal("expected a committed fire not to repeat")
	}
}

func TestGateCrossingCategoryClicksPerCategory(t *testing.T) {
	gate := NewGate(New(DefaultSettings()), config.TriggerModeCrossing, &memoryObservations{values: map[string]float64{}})

	if !decideAndCommit(t, gate, CategoryClicks, "Health", 10) {
		t.Fatal("expected Health arrival at 10 to fire")
	}
	if decideAndCommit(t, gate, CategoryClicks, "Health", 10) {
		t.Fatal("expected a repeat at 10 not to fire")
	}
	if !decideAndCommit(t, gate, CategoryClicks, "Life", 10) {
		t.Fatal("expected Life to be tracked separately from Health")
	}
}

func TestGateCrossingCategoryClicksJumpOverThreshold(t *testing.T) {
	gate := NewGate(New(DefaultSettings()), config.TriggerModeCrossing, &memoryObservations{values: map[string]float64{}})

	if decideAndCommit(t, gate, CategoryClicks, "Travel", 9) {
		t.Fatal("expected 9 not to fire")
	}
	if !decideAndCommit(t, gate, CategoryClicks, "Travel", 11) {
		t.Fatal("expected a jump from 9 to 11 to cross the threshold")
	}
	if decideAndCommit(t, gate, CategoryClicks, "Travel", 12) {
		t.Fatal("expected no further fire above the threshold")
	}
}

func TestGateCrossingUnmetExtraConditionResets(t *testing.T) {
	gate := NewGate(New(DefaultSettings()), config.TriggerModeCrossing, &memoryObservations{values: map[string]float64{}})
	ctx := context.Background()

	// 150 clicks but a purchase on record: not engaged-without-purchase yet.
	d, err := gate.Decide(ctx, "u1", EngagedNoPurchase, "", 150, false)
	if err != nil || d.Fire {
		t.Fatalf("expected no fire while a purchase exists, got %v (%v)", d.Fire, err)
	}
	if err := gate.Commit(ctx, "u1", d, time.Now()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !decideAndCommit(t, gate, EngagedNoPurchase, "", 150) {
		t.Fatal("expected a fire once the condition holds")
	}
}

func TestObservationKey(t *testing.T) {
	if got := ObservationKey(CategoryClicks, "Health"); got != "category_clicks:Health" {
		t.Fatalf("unexpected scoped key %q", got)
	}
	if got := ObservationKey(HighClaims, ""); got != "high_claims" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewGateWithoutStoreFallsBackToExact(t *testing.T) {
	gate := NewGate(New(DefaultSettings()), config.TriggerModeCrossing, nil)
	if gate.Mode() != config.TriggerModeExact {
		t.Fatalf("expected exact mode, got %s", gate.Mode())
	}
}
