package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/internal/segmentation/transport"
	"segmentation_backend/platform/httpkit"
	"segmentation_backend/platform/validator"
)

const (
	msgInvalidRequest      = "invalid request"
	msgMissingTriggerInput = "Missing userId or policyType"
	msgCheckClicksFailed   = "Failed to check clicks"
	msgActiveProfiles      = "Failed to load active profiles"
	msgTrackFailed         = "Failed to track event"
	msgSyncFailed          = "Failed to start segment sync"
	msgRunFailed           = "Failed to load sync run"

	maxEventBody = 1 << 20
)

// Handler handles HTTP requests for segmentation.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new segmentation handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// CheckClicks evaluates the click rules for one user.
// POST /api/v1/segmentation/check-clicks
func (h *Handler) CheckClicks(c *gin.Context) {
	var req transport.CheckClicksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgMissingTriggerInput, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgMissingTriggerInput, validator.FieldErrors(err))
		return
	}

	result, err := h.svc.CheckClicks(c.Request.Context(), service.CheckClicksInput{
		UserID:         req.UserID,
		PolicyCategory: req.PolicyType,
	})
	if httpkit.HandleErrorWithFallback(c, err, msgCheckClicksFailed) {
		return
	}

	httpkit.OK(c, transport.CheckClicksResponse{
		SpecificPolicyClickCount: result.SpecificPolicyClickCount,
		TotalClickCount:          result.TotalClickCount,
		Assigned:                 result.Assigned,
		Segments:                 result.Segments,
	})
}

// ActiveProfiles lists emails by number of profiles, most active first.
// GET /api/v1/segmentation/active-profiles
func (h *Handler) ActiveProfiles(c *gin.Context) {
	activity, err := h.svc.ActiveProfiles(c.Request.Context())
	if httpkit.HandleErrorWithFallback(c, err, msgActiveProfiles) {
		return
	}

	items := make([]transport.ActiveProfileResponse, 0, len(activity))
	for _, a := range activity {
		items = append(items, transport.ActiveProfileResponse{Email: a.Email, Count: a.Count})
	}
	httpkit.OK(c, transport.ActiveProfilesResponse{Items: items, Total: len(items)})
}

// Track forwards a raw tracking event to the profile store.
// POST /api/v1/segmentation/track
func (h *Handler) Track(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody+1))
	if err != nil || len(payload) > maxEventBody {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	status, body, err := h.svc.TrackEvent(c.Request.Context(), payload)
	if httpkit.HandleErrorWithFallback(c, err, msgTrackFailed) {
		return
	}
	if len(body) == 0 {
		c.Status(status)
		return
	}
	c.Data(status, "application/json", body)
}

// RequestSync starts a batch sync outside the schedule.
// POST /api/v1/admin/segmentation/sync
func (h *Handler) RequestSync(c *gin.Context) {
	caller, ok := httpkit.RequireCaller(c)
	if !ok {
		return
	}

	req, err := h.svc.RequestSync(c.Request.Context(), caller.UserID)
	if httpkit.HandleErrorWithFallback(c, err, msgSyncFailed) {
		return
	}

	status := "started"
	if req.Queued {
		status = "queued"
	}
	httpkit.JSON(c, http.StatusAccepted, transport.SyncRequestedResponse{
		Status:  status,
		Trigger: req.Trigger,
		TaskID:  req.TaskID,
	})
}

// GetRun returns a stored batch report.
// GET /api/v1/admin/segmentation/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	var req transport.GetSyncRunRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	report, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if httpkit.HandleErrorWithFallback(c, err, msgRunFailed) {
		return
	}

	archiveURL, err := h.svc.ReportDownloadURL(c.Request.Context(), report)
	if err != nil {
		// The stored report is still useful without the archive link.
		archiveURL = ""
	}
	httpkit.OK(c, toRunResponse(report, archiveURL, req.FailedOnly))
}

func toRunResponse(report service.Report, archiveURL string, failedOnly bool) transport.SyncRunResponse {
	resp := transport.SyncRunResponse{
		RunID:      report.RunID,
		Trigger:    report.Trigger,
		Status:     report.Status,
		StartedAt:  report.StartedAt,
		Passes:     make([]string, 0, len(report.Passes)),
		Total:      report.Counters.Total,
		Synced:     report.Counters.Synced,
		Skipped:    report.Counters.Skipped,
		Failed:     report.Counters.Failed,
		Error:      report.Error,
		ArchiveURL: archiveURL,
		Results:    make([]transport.UserResultResponse, 0, len(report.Results)),
		FailedOnly: failedOnly,
	}
	if !report.FinishedAt.IsZero() {
		finishedAt := report.FinishedAt
		resp.FinishedAt = &finishedAt
	}
	for _, pass := range report.Passes {
		resp.Passes = append(resp.Passes, string(pass))
	}

	results := report.Results
	if failedOnly {
		results = report.FailedResults()
	}
	for _, res := range results {
		resp.Results = append(resp.Results, transport.UserResultResponse{
			UserID:   res.UserID,
			Email:    res.Email,
			Pass:     string(res.Pass),
			State:    string(res.State),
			Segments: res.Segments,
			Errors:   res.Errors,
		})
	}
	return resp
}
