package transport

import "time"

// Inline trigger

type CheckClicksRequest struct {
	UserID     string `json:"userId" validate:"required,notblank,max=128"`
	PolicyType string `json:"policyType" validate:"required,notblank,max=100"`
}

type CheckClicksResponse struct {
	SpecificPolicyClickCount int64 `json:"specificPolicyClickCount"`
	TotalClickCount          int64 `json:"totalClickCount"`
	Assigned                 bool  `json:"assigned"`
	Segments                 []int `json:"segments"`
}

// Profile activity

type ActiveProfileResponse struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

type ActiveProfilesResponse struct {
	Items []ActiveProfileResponse `json:"items"`
	Total int                     `json:"total"`
}

// Batch sync

type SyncRequestedResponse struct {
	Status  string `json:"status"`
	Trigger string `json:"trigger"`
	TaskID  string `json:"taskId,omitempty"`
}

type UserResultResponse struct {
	UserID   string   `json:"userId"`
	Email    string   `json:"email"`
	Pass     string   `json:"pass"`
	State    string   `json:"state"`
	Segments []int    `json:"segments"`
	Errors   []string `json:"errors,omitempty"`
}

type SyncRunResponse struct {
	RunID      string               `json:"runId"`
	Trigger    string               `json:"trigger"`
	Status     string               `json:"status"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt *time.Time           `json:"finishedAt,omitempty"`
	Passes     []string             `json:"passes"`
	Total      int                  `json:"total"`
	Synced     int                  `json:"synced"`
	Skipped    int                  `json:"skipped"`
	Failed     int                  `json:"failed"`
	Error      string               `json:"error,omitempty"`
	ArchiveURL string               `json:"archiveUrl,omitempty"`
	Results    []UserResultResponse `json:"results"`
	FailedOnly bool                 `json:"failedOnly"`
}

type GetSyncRunRequest struct {
	FailedOnly bool `form:"failedOnly"`
}
