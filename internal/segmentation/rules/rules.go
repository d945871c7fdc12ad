// Package rules holds the fixed threshold rule catalogue and its evaluation.
// Evaluation is pure; the crossing gate in gate.go adds persisted state.
package rules

import (
	"strings"
	"time"

	"segmentation_backend/platform/config"
)

// RuleID is the stable identifier used in logs, reports and observations.
type RuleID string

const (
	CategoryClicks      RuleID = "category_clicks"
	EngagedNoPurchase   RuleID = "engaged_no_purchase"
	HighVolumePurchaser RuleID = "high_volume_purchaser"
	HighClaims          RuleID = "high_claims"
	Inactive            RuleID = "inactive"
)

// Comparison is the operator a rule applies between the aggregate and its threshold.
type Comparison string

const (
	Equal       Comparison = "eq"
	AtLeast     Comparison = "gte"
	GreaterThan Comparison = "gt"
)

const nanosPerHour = float64(time.Hour)

// Aggregate names the behavioral value a rule reads.
type Aggregate string

const (
	AggregateCategoryClicks  Aggregate = "clicks_on_policy"
	AggregateTotalClicks     Aggregate = "total_clicks"
	AggregatePurchaseCount   Aggregate = "purchased_policy_count"
	AggregateClaimAmount     Aggregate = "total_claim_amount"
	AggregateLoginAgeInHours Aggregate = "last_login_age_hours"
)

// Rule is one immutable threshold rule. Segment is unused for
// category_clicks, which resolves its segment from the category map.
type Rule struct {
	ID         RuleID     `json:"id"`
	Aggregate  Aggregate  `json:"aggregate"`
	Comparison Comparison `json:"comparison"`
	Threshold  float64    `json:"threshold"`
	Segment    int        `json:"segment"`
}

func (r Rule) holds(value float64) bool {
	switch r.Comparison {
	case Equal:
		return value == r.Threshold
	case AtLeast:
		return value >= r.Threshold
	case GreaterThan:
		return value > r.Threshold
	default:
		return false
	}
}

// Settings carries thresholds and segment ids.
type Settings struct {
	CategorySegments         map[string]int
	DefaultCategorySegment   int
	EngagedNoPurchaseSegment int
	HighVolumeSegment        int
	HighClaimsSegment        int
	InactiveSegment          int
	CategoryClickThreshold   int64
	TotalClickThreshold      int64
	PurchaseThreshold        int64
	ClaimAmountThreshold     float64
	InactivityWindow         time.Duration
}

// DefaultSettings returns the production thresholds and segment ids.
func DefaultSettings() Settings {
	return Settings{
		CategorySegments: map[string]int{
			"Health":   3,
			"Life":     4,
			"Travel":   5,
			"Auto":     7,
			"Business": 6,
		},
		DefaultCategorySegment:   3,
		EngagedNoPurchaseSegment: 10,
		HighVolumeSegment:        8,
		HighClaimsSegment:        9,
		InactiveSegment:          11,
		CategoryClickThreshold:   10,
		TotalClickThreshold:      100,
		PurchaseThreshold:        10,
		ClaimAmountThreshold:     15000,
		InactivityWindow:         30 * 24 * time.Hour,
	}
}

// SettingsFromConfig reads rule settings from application config.
func SettingsFromConfig(cfg config.SegmentationConfig) Settings {
	return Settings{
		CategorySegments:         cfg.GetCategorySegments(),
		DefaultCategorySegment:   cfg.GetDefaultCategorySegment(),
		EngagedNoPurchaseSegment: cfg.GetEngagedNoPurchaseSegment(),
		HighVolumeSegment:        cfg.GetHighVolumeSegment(),
		HighClaimsSegment:        cfg.GetHighClaimsSegment(),
		InactiveSegment:          cfg.GetInactiveSegment(),
		CategoryClickThreshold:   cfg.GetCategoryClickThreshold(),
		TotalClickThreshold:      cfg.GetTotalClickThreshold(),
		PurchaseThreshold:        cfg.GetPurchaseThreshold(),
		ClaimAmountThreshold:     cfg.GetClaimAmountThreshold(),
		InactivityWindow:         cfg.GetInactivityWindow(),
	}
}

// RuleSet is the immutable rule catalogue built once at startup.
type RuleSet struct {
	rules            map[RuleID]Rule
	order            []RuleID
	categorySegments map[string]int
	defaultCategory  int
	inactivityWindow time.Duration
}

// New builds the rule catalogue.
func New(s Settings) *RuleSet {
	catalogue := []Rule{
		{ID: CategoryClicks, Aggregate: AggregateCategoryClicks, Comparison: Equal, Threshold: float64(s.CategoryClickThreshold)},
		{ID: EngagedNoPurchase, Aggregate: AggregateTotalClicks, Comparison: AtLeast, Threshold: float64(s.TotalClickThreshold), Segment: s.EngagedNoPurchaseSegment},
		{ID: HighVolumePurchaser, Aggregate: AggregatePurchaseCount, Comparison: GreaterThan, Threshold: float64(s.PurchaseThreshold), Segment: s.HighVolumeSegment},
		{ID: HighClaims, Aggregate: AggregateClaimAmount, Comparison: GreaterThan, Threshold: s.ClaimAmountThreshold, Segment: s.HighClaimsSegment},
		{ID: Inactive, Aggregate: AggregateLoginAgeInHours, Comparison: GreaterThan, Threshold: float64(s.InactivityWindow) / nanosPerHour, Segment: s.InactiveSegment},
	}

	rs := &RuleSet{
		rules:            make(map[RuleID]Rule, len(catalogue)),
		order:            make([]RuleID, 0, len(catalogue)),
		categorySegments: make(map[string]int, len(s.CategorySegments)),
		defaultCategory:  s.DefaultCategorySegment,
		inactivityWindow: s.InactivityWindow,
	}
	for _, rule := range catalogue {
		rs.rules[rule.ID] = rule
		rs.order = append(rs.order, rule.ID)
	}
	for name, id := range s.CategorySegments {
		rs.categorySegments[name] = id
	}
	return rs
}

// Rule returns the rule with the given id.
func (rs *RuleSet) Rule(id RuleID) (Rule, bool) {
	rule, ok := rs.rules[id]
	return rule, ok
}

// Rules returns the catalogue in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, 0, len(rs.order))
	for _, id := range rs.order {
		out = append(out, rs.rules[id])
	}
	return out
}

// Evaluate reports whether the rule's threshold holds for the current value.
// Unknown rule ids never fire.
func (rs *RuleSet) Evaluate(id RuleID, value float64) bool {
	rule, ok := rs.rules[id]
	if !ok {
		return false
	}
	return rule.holds(value)
}

// EngagedWithoutPurchase fires for heavy clickers that never bought a policy.
func (rs *RuleSet) EngagedWithoutPurchase(totalClicks, purchases int64) bool {
	return rs.Evaluate(EngagedNoPurchase, float64(totalClicks)) && purchases == 0
}

// Inactive reports whether the last login is older than the inactivity
// window. A zero lastLogin means no login data and never fires.
func (rs *RuleSet) Inactive(lastLogin, now time.Time) bool {
	if lastLogin.IsZero() {
		return false
	}
	return rs.Evaluate(Inactive, LoginAgeHours(lastLogin, now))
}

// LoginAgeHours is the aggregate value the inactive rule compares.
func LoginAgeHours(lastLogin, now time.Time) float64 {
	return float64(now.Sub(lastLogin)) / nanosPerHour
}

// CategorySegment maps a policy category to its segment. Unmapped categories
// use the default category segment.
func (rs *RuleSet) CategorySegment(category string) int {
	if id, ok := rs.categorySegments[category]; ok {
		return id
	}
	trimmed := strings.TrimSpace(category)
	for name, id := range rs.categorySegments {
		if strings.EqualFold(name, trimmed) {
			return id
		}
	}
	return rs.defaultCategory
}

// Segment returns the fixed segment of a non-category rule.
func (rs *RuleSet) Segment(id RuleID) int {
	return rs.rules[id].Segment
}
