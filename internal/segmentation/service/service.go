// Package service implements segmentation business logic: the inline click
// trigger, the batch sync orchestrator and the operations behind the HTTP API.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/platform/apperr"
	"segmentation_backend/platform/logger"
)

// SyncRequest is the outcome of asking for a batch run.
type SyncRequest struct {
	TaskID   string
	Queued   bool
	Trigger  string
	Detached bool
}

// Service exposes segmentation operations to handlers and entry points.
type Service struct {
	trigger      *Trigger
	orchestrator *Orchestrator
	activity     ActivityReader
	events       EventForwarder
	runs         RunStore
	archive      *ReportArchive
	enqueuer     SyncEnqueuer
	log          *logger.Logger
}

// New creates the segmentation service.
func New(trigger *Trigger, orchestrator *Orchestrator, activity ActivityReader, events EventForwarder, runs RunStore, archive *ReportArchive, log *logger.Logger) *Service {
	return &Service{
		trigger:      trigger,
		orchestrator: orchestrator,
		activity:     activity,
		events:       events,
		runs:         runs,
		archive:      archive,
		log:          log,
	}
}

// SetSyncEnqueuer routes manual sync requests through the background queue.
// Without one, manual runs execute in a goroutine of this process.
func (s *Service) SetSyncEnqueuer(enqueuer SyncEnqueuer) {
	s.enqueuer = enqueuer
}

// CheckClicks runs the inline click trigger.
func (s *Service) CheckClicks(ctx context.Context, in CheckClicksInput) (CheckClicksResult, error) {
	return s.trigger.CheckClicks(ctx, in)
}

// ActiveProfiles returns profile counts per email, most active first.
func (s *Service) ActiveProfiles(ctx context.Context) ([]domain.EmailActivity, error) {
	return s.activity.ActiveProfiles(ctx)
}

// TrackEvent forwards a raw event body to the profile store and returns the
// store's status and body.
func (s *Service) TrackEvent(ctx context.Context, payload []byte) (int, []byte, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return 0, nil, apperr.BadRequest("event body is required")
	}
	status, body, err := s.events.TrackEvent(ctx, payload)
	if err != nil {
		return 0, nil, apperr.UpstreamWrite("unomi: forward event", err)
	}
	return status, body, nil
}

// RequestSync starts a batch run out of schedule.
func (s *Service) RequestSync(ctx context.Context, requestedBy string) (SyncRequest, error) {
	if s.orchestrator.Running() {
		return SyncRequest{}, apperr.Conflict(ErrSyncInProgress.Error())
	}

	if s.enqueuer != nil {
		taskID, err := s.enqueuer.EnqueueSync(ctx, TriggerManual, requestedBy)
		if err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				return SyncRequest{}, apperr.Conflict(ErrSyncInProgress.Error())
			}
			return SyncRequest{}, apperr.Wrap(apperr.KindInternal, "enqueue segment sync", err)
		}
		s.log.Info("segment sync enqueued", "taskId", taskID, "requestedBy", requestedBy)
		return SyncRequest{TaskID: taskID, Queued: true, Trigger: TriggerManual}, nil
	}

	go func(ctx context.Context) {
		_ = s.orchestrator.RunTriggered(ctx, TriggerManual)
	}(context.WithoutCancel(ctx))
	s.log.Info("segment sync started in process", "requestedBy", requestedBy)
	return SyncRequest{Trigger: TriggerManual, Detached: true}, nil
}

// GetRun loads a stored batch report.
func (s *Service) GetRun(ctx context.Context, runID string) (Report, error) {
	if s.runs == nil {
		return Report{}, apperr.NotFound("sync run history is not enabled")
	}
	id, err := uuid.Parse(strings.TrimSpace(runID))
	if err != nil {
		return Report{}, apperr.Validation("invalid run id")
	}

	run, results, err := s.runs.GetRun(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Report{}, err
		}
		return Report{}, apperr.Wrap(apperr.KindInternal, "load sync run", err)
	}

	return fromRecords(run, results), nil
}

// ReportDownloadURL returns a presigned link to the archived JSON report.
func (s *Service) ReportDownloadURL(ctx context.Context, report Report) (string, error) {
	if s.archive == nil || report.ArchiveKey == "" {
		return "", nil
	}
	link, err := s.archive.DownloadURL(ctx, report.ArchiveKey)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}
