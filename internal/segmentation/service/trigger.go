package service

import (
	"context"
	"strings"
	"time"

	"segmentation_backend/internal/segmentation/rules"
	"segmentation_backend/platform/apperr"
	"segmentation_backend/platform/logger"
)

const (
	msgMissingTriggerInput = "Missing userId or policyType"
	msgUserNotFound        = "User not found"
)

// CheckClicksInput identifies the user and the policy category just clicked.
type CheckClicksInput struct {
	UserID         string
	PolicyCategory string
}

// CheckClicksResult reports the counts read and the segments assigned.
type CheckClicksResult struct {
	SpecificPolicyClickCount int64 `json:"specificPolicyClickCount"`
	TotalClickCount          int64 `json:"totalClickCount"`
	Assigned                 bool  `json:"assigned"`
	Segments                 []int `json:"segments"`
}

// Trigger evaluates the click rules for one user right after a click.
type Trigger struct {
	reader    AggregateReader
	directory UserDirectory
	rules     *rules.RuleSet
	gate      *rules.Gate
	upserter  ContactUpserter
	assigner  SegmentAssigner
	log       *logger.Logger
	now       func() time.Time
}

// NewTrigger creates the inline click trigger.
func NewTrigger(reader AggregateReader, directory UserDirectory, ruleSet *rules.RuleSet, gate *rules.Gate, upserter ContactUpserter, assigner SegmentAssigner, log *logger.Logger) *Trigger {
	return &Trigger{
		reader:    reader,
		directory: directory,
		rules:     ruleSet,
		gate:      gate,
		upserter:  upserter,
		assigner:  assigner,
		log:       log,
		now:       time.Now,
	}
}

// CheckClicks reads the user's click counts and assigns the category and
// engaged-without-purchase segments when their rules fire.
func (t *Trigger) CheckClicks(ctx context.Context, in CheckClicksInput) (CheckClicksResult, error) {
	userID := strings.TrimSpace(in.UserID)
	category := strings.TrimSpace(in.PolicyCategory)
	if userID == "" || category == "" {
		return CheckClicksResult{}, apperr.Validation(msgMissingTriggerInput)
	}

	user, err := t.directory.FindUserByID(ctx, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return CheckClicksResult{}, apperr.NotFound(msgUserNotFound)
		}
		return CheckClicksResult{}, apperr.Wrap(apperr.KindInternal, "find user", err)
	}

	log := t.log.WithContext(ctx).WithUserID(userID)
	result := CheckClicksResult{Segments: []int{}}
	var decisions []rules.Decision
	var segments []int

	categoryClicks, err := t.reader.CategoryClickCount(ctx, userID, category)
	if err != nil {
		return CheckClicksResult{}, err
	}
	result.SpecificPolicyClickCount = categoryClicks

	d, err := t.gate.Decide(ctx, userID, rules.CategoryClicks, category, float64(categoryClicks), true)
	if err != nil {
		return CheckClicksResult{}, apperr.Wrap(apperr.KindInternal, "evaluate category rule", err)
	}
	decisions = append(decisions, d)
	if d.Fire {
		segments = append(segments, t.rules.CategorySegment(category))
	}

	totalClicks, err := t.reader.TotalClickCount(ctx, userID)
	if err != nil {
		return CheckClicksResult{}, err
	}
	result.TotalClickCount = totalClicks

	// Purchases are re-read only for heavy clickers, and always fresh.
	noPurchase := false
	if t.rules.Evaluate(rules.EngagedNoPurchase, float64(totalClicks)) {
		purchases, err := t.reader.PurchasedPolicyCount(ctx, userID)
		if err != nil {
			return CheckClicksResult{}, err
		}
		noPurchase = purchases == 0
	}
	d, err = t.gate.Decide(ctx, userID, rules.EngagedNoPurchase, "", float64(totalClicks), noPurchase)
	if err != nil {
		return CheckClicksResult{}, apperr.Wrap(apperr.KindInternal, "evaluate engagement rule", err)
	}
	decisions = append(decisions, d)
	if d.Fire {
		segments = append(segments, t.rules.Segment(rules.EngagedNoPurchase))
	}

	if len(segments) == 0 {
		t.commit(ctx, log, userID, decisions, false)
		log.Debug("no click rule fired", "category", category, "categoryClicks", categoryClicks, "totalClicks", totalClicks)
		return result, nil
	}

	contactID, err := t.upserter.Upsert(ctx, user.Name, user.Email)
	if err != nil {
		t.commit(ctx, log, userID, decisions, false)
		return CheckClicksResult{}, err
	}
	if err := t.assigner.Assign(ctx, contactID, segments...); err != nil {
		t.commit(ctx, log, userID, decisions, false)
		return CheckClicksResult{}, err
	}
	t.commit(ctx, log, userID, decisions, true)

	log.Info("click rules assigned segments", "category", category, "contactId", contactID, "segments", segments)
	result.Assigned = true
	result.Segments = segments
	return result, nil
}

// commit advances observations. Fired decisions are committed only when the
// segments were assigned, so a failed write fires again on the next click.
// A failed commit only risks a repeated, idempotent assignment.
func (t *Trigger) commit(ctx context.Context, log *logger.Logger, userID string, decisions []rules.Decision, assigned bool) {
	now := t.now()
	for _, d := range decisions {
		if d.Fire && !assigned {
			continue
		}
		if err := t.gate.Commit(ctx, userID, d, now); err != nil {
			log.Warn("failed to record rule observation", "rule", string(d.Rule), "error", err)
		}
	}
}
