package service

import (
	"fmt"
	"time"

	"segmentation_backend/internal/segmentation/rules"
)

// UserState is the per-user state in a batch pass.
//
//	pending -> evaluated -> skipped | synced | failed
type UserState string

const (
	StatePending   UserState = "pending"
	StateEvaluated UserState = "evaluated"
	StateSkipped   UserState = "skipped"
	StateSynced    UserState = "synced"
	StateFailed    UserState = "failed"
)

// Pass names a sweep of a batch run.
type Pass string

const (
	PassPurchases Pass = "purchases"
	PassInactive  Pass = "inactive"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerCLI       = "cli"
)

// UserResult is the outcome for one user in one pass.
type UserResult struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email"`
	Pass     Pass      `json:"pass"`
	State    UserState `json:"state"`
	Segments []int     `json:"segments"`
	Errors   []string  `json:"errors,omitempty"`
}

func (r *UserResult) addError(rule rules.RuleID, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", rule, err))
}

// Counters summarize a report.
type Counters struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Report is the result of one batch run.
type Report struct {
	RunID      string       `json:"runId"`
	Trigger    string       `json:"trigger"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Passes     []Pass       `json:"passes"`
	Counters   Counters     `json:"counters"`
	Results    []UserResult `json:"results"`
	Error      string       `json:"error,omitempty"`
	ArchiveKey string       `json:"archiveKey,omitempty"`
}

func (r *Report) tally() {
	c := Counters{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.State {
		case StateSynced:
			c.Synced++
		case StateSkipped:
			c.Skipped++
		case StateFailed:
			c.Failed++
		}
	}
	r.Counters = c
}

// FailedResults returns the results that ended in the failed state.
func (r Report) FailedResults() []UserResult {
	var out []UserResult
	for _, res := range r.Results {
		if res.State == StateFailed {
			out = append(out, res)
		}
	}
	return out
}
