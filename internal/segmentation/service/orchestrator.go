package service

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"segmentation_backend/internal/segmentation/crm"
	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/internal/segmentation/repository"
	"segmentation_backend/internal/segmentation/rules"
	"segmentation_backend/platform/logger"
)

const defaultSyncConcurrency = 4

// batchReader is everything a batch run reads from the profile store.
type batchReader interface {
	AggregateReader
	PopulationReader
}

// Orchestrator runs the batch sweep over the whole user population.
//
// Each user is evaluated and synced independently; a failure for one user is
// recorded in the report and never stops the sweep. Only a failed population
// read ends a run early.
type Orchestrator struct {
	reader      batchReader
	rules       *rules.RuleSet
	gate        *rules.Gate
	upserter    ContactUpserter
	assigner    SegmentAssigner
	runs        RunStore
	archive     *ReportArchive
	lock        RunLock
	concurrency int
	log         *logger.Logger
	now         func() time.Time

	running atomic.Bool
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithRunStore persists every run report.
func WithRunStore(store RunStore) OrchestratorOption {
	return func(o *Orchestrator) { o.runs = store }
}

// WithReportArchive uploads every finished report to object storage.
func WithReportArchive(archive *ReportArchive) OrchestratorOption {
	return func(o *Orchestrator) { o.archive = archive }
}

// WithRunLock adds a cross-process lock on top of the in-process guard.
func WithRunLock(lock RunLock) OrchestratorOption {
	return func(o *Orchestrator) { o.lock = lock }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a batch orchestrator. concurrency bounds the number
// of users in flight at once.
func NewOrchestrator(reader batchReader, ruleSet *rules.RuleSet, gate *rules.Gate, upserter ContactUpserter, assigner SegmentAssigner, concurrency int, log *logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	if concurrency < 1 {
		concurrency = defaultSyncConcurrency
	}
	o := &Orchestrator{
		reader:      reader,
		rules:       ruleSet,
		gate:        gate,
		upserter:    upserter,
		assigner:    assigner,
		concurrency: concurrency,
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Running reports whether a run is in progress in this process.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunScheduled is the parameterless entry point for the periodic schedule.
// Failures are logged and returned as *SyncJobError; nothing panics out.
func (o *Orchestrator) RunScheduled(ctx context.Context) error {
	return o.RunTriggered(ctx, TriggerScheduled)
}

// RunTriggered runs one batch and reduces the outcome to an error for callers
// that only need to know whether the run completed.
func (o *Orchestrator) RunTriggered(ctx context.Context, trigger string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("segment sync panicked", "trigger", trigger, "panic", r)
			err = &SyncJobError{Err: errors.New("panic during segment sync")}
		}
	}()

	report, err := o.Run(ctx, trigger)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSyncInProgress) {
		o.log.Info("segment sync skipped, another run is in progress", "trigger", trigger)
		return err
	}

	jobErr := &SyncJobError{RunID: report.RunID, Err: err}
	o.log.Error("segment sync job failed", "runId", report.RunID, "trigger", trigger, "error", err)
	return jobErr
}

// Run executes both passes and returns the report. The returned error is
// non-nil only when the run could not complete (lock held, population read
// failed); per-user failures live in the report.
func (o *Orchestrator) Run(ctx context.Context, trigger string) (Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Report{}, ErrSyncInProgress
	}
	defer o.running.Store(false)

	if o.lock != nil {
		release, acquired, err := o.lock.Acquire(ctx)
		if err != nil {
			return Report{}, err
		}
		if !acquired {
			return Report{}, ErrSyncInProgress
		}
		defer release(context.WithoutCancel(ctx))
	}

	runID := uuid.New()
	report := Report{
		RunID:     runID.String(),
		Trigger:   trigger,
		Status:    RunStatusRunning,
		StartedAt: o.now().UTC(),
		Results:   []UserResult{},
	}
	ctx = context.WithValue(ctx, logger.RunIDKey, report.RunID)
	log := o.log.WithRunID(report.RunID)
	log.Info("segment sync started", "trigger", trigger, "concurrency", o.concurrency, "mode", o.gate.Mode())

	if o.runs != nil {
		if err := o.runs.CreateRun(ctx, repository.RunRecord{
			ID:        runID,
			Trigger:   trigger,
			Status:    RunStatusRunning,
			StartedAt: report.StartedAt,
		}); err != nil {
			log.DatabaseError("create sync run", err)
		}
	}

	runErr := o.sweep(ctx, &report)

	report.FinishedAt = o.now().UTC()
	report.tally()
	report.Status = RunStatusCompleted
	if runErr != nil {
		report.Status = RunStatusFailed
		report.Error = runErr.Error()
	}

	o.persist(ctx, log, runID, &report)

	log.Info("segment sync finished",
		"status", report.Status,
		"users", report.Counters.Total,
		"synced", report.Counters.Synced,
		"skipped", report.Counters.Skipped,
		"failed", report.Counters.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	return report, runErr
}

func (o *Orchestrator) sweep(ctx context.Context, report *Report) error {
	now := report.StartedAt

	users, err := o.reader.ListUsers(ctx)
	if err != nil {
		return err
	}
	report.Passes = append(report.Passes, PassPurchases)
	report.Results = append(report.Results, o.fanOut(ctx, len(users), func(ctx context.Context, i int) UserResult {
		return o.syncPurchases(ctx, report.RunID, users[i], now)
	})...)

	inactive, err := o.reader.ListInactiveUsers(ctx, now)
	if err != nil {
		return err
	}
	report.Passes = append(report.Passes, PassInactive)
	report.Results = append(report.Results, o.fanOut(ctx, len(inactive), func(ctx context.Context, i int) UserResult {
		return o.syncInactive(ctx, report.RunID, inactive[i], now)
	})...)

	return nil
}

// fanOut runs fn for every index with bounded concurrency. Each call owns its
// slot in the result slice; fn never fails the group.
func (o *Orchestrator) fanOut(ctx context.Context, n int, fn func(context.Context, int) UserResult) []UserResult {
	results := make([]UserResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) syncPurchases(ctx context.Context, runID string, user domain.UserIdentity, now time.Time) UserResult {
	res := UserResult{UserID: user.UserID, Email: user.Email, Pass: PassPurchases, State: StatePending, Segments: []int{}}
	if err := ctx.Err(); err != nil {
		res.State = StateFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	var decisions []gated

	purchases, err := o.reader.PurchasedPolicyCount(ctx, user.UserID)
	if err != nil {
		o.log.SyncUserFailed(runID, user.Email, string(rules.HighVolumePurchaser), err)
		res.addError(rules.HighVolumePurchaser, err)
	} else if d, ok := o.decide(ctx, runID, &res, rules.HighVolumePurchaser, float64(purchases), true); ok {
		decisions = append(decisions, gated{Decision: d, segment: o.rules.Segment(rules.HighVolumePurchaser)})
	}

	claims, err := o.reader.TotalClaimAmount(ctx, user.UserID)
	if err != nil {
		o.log.SyncUserFailed(runID, user.Email, string(rules.HighClaims), err)
		res.addError(rules.HighClaims, err)
	} else if d, ok := o.decide(ctx, runID, &res, rules.HighClaims, claims, true); ok {
		decisions = append(decisions, gated{Decision: d, segment: o.rules.Segment(rules.HighClaims)})
	}

	res.State = StateEvaluated
	res = o.materialize(ctx, runID, user, res, firedSegments(decisions))
	o.commit(ctx, runID, &res, decisions, now)
	return res
}

func (o *Orchestrator) syncInactive(ctx context.Context, runID string, user domain.InactiveUser, now time.Time) UserResult {
	res := UserResult{UserID: user.UserID, Email: user.Email, Pass: PassInactive, State: StatePending, Segments: []int{}}
	if err := ctx.Err(); err != nil {
		res.State = StateFailed
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	var decisions []gated
	age := rules.LoginAgeHours(user.LastLoginAt, now)
	if d, ok := o.decide(ctx, runID, &res, rules.Inactive, age, !user.LastLoginAt.IsZero()); ok {
		decisions = append(decisions, gated{Decision: d, segment: o.rules.Segment(rules.Inactive)})
	}

	res.State = StateEvaluated
	res = o.materialize(ctx, runID, user.UserIdentity, res, firedSegments(decisions))
	o.commit(ctx, runID, &res, decisions, now)
	return res
}

// gated pairs a gate decision with the segment it assigns.
type gated struct {
	rules.Decision
	segment int
}

func firedSegments(decisions []gated) []int {
	var segments []int
	for _, d := range decisions {
		if d.Fire {
			segments = append(segments, d.segment)
		}
	}
	return segments
}

// decide evaluates one rule through the gate. A gate failure counts as not fired.
func (o *Orchestrator) decide(ctx context.Context, runID string, res *UserResult, id rules.RuleID, value float64, extra bool) (rules.Decision, bool) {
	d, err := o.gate.Decide(ctx, res.UserID, id, "", value, extra)
	if err != nil {
		o.log.SyncUserFailed(runID, res.Email, string(id), err)
		res.addError(id, err)
		return rules.Decision{}, false
	}
	return d, true
}

// commit advances observations after materialize. A fired decision is
// committed only when its segment landed, so a failed write fires again on
// the next run.
func (o *Orchestrator) commit(ctx context.Context, runID string, res *UserResult, decisions []gated, now time.Time) {
	for _, d := range decisions {
		if d.Fire && !slices.Contains(res.Segments, d.segment) {
			continue
		}
		if err := o.gate.Commit(ctx, res.UserID, d.Decision, now); err != nil {
			o.log.SyncUserFailed(runID, res.Email, string(d.Rule), err)
			res.addError(d.Rule, err)
		}
	}
}

// materialize upserts the contact and asserts membership for fired rules.
func (o *Orchestrator) materialize(ctx context.Context, runID string, user domain.UserIdentity, res UserResult, segments []int) UserResult {
	if len(segments) == 0 {
		res.State = StateSkipped
		return res
	}

	contactID, err := o.upserter.Upsert(ctx, user.Name, user.Email)
	if err != nil {
		o.log.SyncUserFailed(runID, user.Email, "contact_upsert", err)
		res.Errors = append(res.Errors, "contact_upsert: "+err.Error())
		res.State = StateFailed
		return res
	}

	if err := o.assigner.Assign(ctx, contactID, segments...); err != nil {
		o.log.SyncUserFailed(runID, user.Email, "segment_assign", err)
		res.Errors = append(res.Errors, "segment_assign: "+err.Error())
		res.Segments = withoutSegments(segments, crm.FailedSegments(err))
		res.State = StateFailed
		return res
	}

	res.Segments = segments
	res.State = StateSynced
	return res
}

func (o *Orchestrator) persist(ctx context.Context, log *logger.Logger, runID uuid.UUID, report *Report) {
	ctx = context.WithoutCancel(ctx)

	if o.archive != nil {
		key, err := o.archive.Store(ctx, *report)
		if err != nil {
			log.Warn("failed to archive sync report", "error", err)
		} else {
			report.ArchiveKey = key
		}
	}

	if o.runs == nil {
		return
	}
	run, results := toRecords(runID, *report)
	if err := o.runs.FinishRun(ctx, run, results); err != nil {
		log.DatabaseError("finish sync run", err)
	}
}

func withoutSegments(segments, failed []int) []int {
	if len(failed) == 0 {
		return []int{}
	}
	drop := make(map[int]struct{}, len(failed))
	for _, id := range failed {
		drop[id] = struct{}{}
	}
	out := make([]int, 0, len(segments))
	for _, id := range segments {
		if _, skip := drop[id]; !skip {
			out = append(out, id)
		}
	}
	return out
}
