package rules

import (
	"context"
	"fmt"
	"time"

	"segmentation_backend/platform/config"
)

// ObservationStore persists the last value seen per (user, observation key).
type ObservationStore interface {
	LastObservation(ctx context.Context, userID, key string) (value float64, found bool, err error)
	RecordObservation(ctx context.Context, userID, key string, value float64, observedAt time.Time) error
}

// ObservationKey names the stored slot for a rule. Scoped rules, such as
// category_clicks per category, keep one slot per scope.
func ObservationKey(id RuleID, scope string) string {
	if scope == "" {
		return string(id)
	}
	return string(id) + ":" + scope
}

// Decision is one gated rule evaluation. In crossing mode it must be
// committed for the observed value to advance.
type Decision struct {
	Rule RuleID
	Fire bool

	key      string
	observed float64
	tracked  bool
}

// Gate turns a rule result into a firing decision according to the trigger mode.
//
// In exact mode the current evaluation is the decision. In crossing mode a rule
// fires when the last committed value had not reached the threshold and the
// current one has. Callers commit a fired decision only after its segment was
// assigned, so a failed CRM write fires again on the next run.
type Gate struct {
	rules *RuleSet
	mode  string
	store ObservationStore
}

// NewGate creates a gate. A nil store forces exact mode.
func NewGate(rules *RuleSet, mode string, store ObservationStore) *Gate {
	if store == nil || mode != config.TriggerModeCrossing {
		mode = config.TriggerModeExact
	}
	return &Gate{rules: rules, mode: mode, store: store}
}

// Mode returns the effective trigger mode.
func (g *Gate) Mode() string {
	return g.mode
}

// Decide evaluates rule id for the user without recording anything. value
// is the rule's aggregate; extra is any additional condition the rule
// requires (purchases == 0 for engaged_no_purchase, login data present for
// inactive). scope separates observations of a scoped rule.
func (g *Gate) Decide(ctx context.Context, userID string, id RuleID, scope string, value float64, extra bool) (Decision, error) {
	if g.mode != config.TriggerModeCrossing {
		return Decision{Rule: id, Fire: g.rules.Evaluate(id, value) && extra}, nil
	}

	key := ObservationKey(id, scope)
	last, found, err := g.store.LastObservation(ctx, userID, key)
	if err != nil {
		return Decision{}, fmt.Errorf("read rule observation: %w", err)
	}

	reached := g.reached(id, value) && extra
	observed := value
	if !extra {
		observed = 0
	}
	wasReached := found && g.reached(id, last)
	return Decision{
		Rule:     id,
		Fire:     reached && !wasReached,
		key:      key,
		observed: observed,
		tracked:  true,
	}, nil
}

// Commit records the decision's observed value. It is a no-op in exact mode.
func (g *Gate) Commit(ctx context.Context, userID string, d Decision, now time.Time) error {
	if !d.tracked {
		return nil
	}
	if err := g.store.RecordObservation(ctx, userID, d.key, d.observed, now); err != nil {
		return fmt.Errorf("record rule observation: %w", err)
	}
	return nil
}

// reached is the crossing-mode test: equality rules count as reached at or
// above their threshold, so a jump over the exact value still crosses.
func (g *Gate) reached(id RuleID, value float64) bool {
	rule, ok := g.rules.Rule(id)
	if !ok {
		return false
	}
	if rule.Comparison == Equal {
		return value >= rule.Threshold
	}
	return rule.holds(value)
}
