package service

import (
	"github.com/google/uuid"

	"segmentation_backend/internal/segmentation/repository"
)

func toRecords(runID uuid.UUID, report Report) (repository.RunRecord, []repository.ResultRecord) {
	finishedAt := report.FinishedAt
	run := repository.RunRecord{
		ID:           runID,
		Trigger:      report.Trigger,
		Status:       report.Status,
		StartedAt:    report.StartedAt,
		FinishedAt:   &finishedAt,
		UsersTotal:   report.Counters.Total,
		UsersSynced:  report.Counters.Synced,
		UsersSkipped: report.Counters.Skipped,
		UsersFailed:  report.Counters.Failed,
	}
	if report.Error != "" {
		msg := report.Error
		run.Error = &msg
	}
	if report.ArchiveKey != "" {
		key := report.ArchiveKey
		run.ArchiveKey = &key
	}

	results := make([]repository.ResultRecord, 0, len(report.Results))
	for _, res := range report.Results {
		segments := make([]int32, 0, len(res.Segments))
		for _, id := range res.Segments {
			segments = append(segments, int32(id))
		}
		results = append(results, repository.ResultRecord{
			Pass:     string(res.Pass),
			UserID:   res.UserID,
			Email:    res.Email,
			State:    string(res.State),
			Segments: segments,
			Errors:   res.Errors,
		})
	}
	return run, results
}

func fromRecords(run repository.RunRecord, results []repository.ResultRecord) Report {
	report := Report{
		RunID:     run.ID.String(),
		Trigger:   run.Trigger,
		Status:    run.Status,
		StartedAt: run.StartedAt,
		Counters: Counters{
			Total:   run.UsersTotal,
			Synced:  run.UsersSynced,
			Skipped: run.UsersSkipped,
			Failed:  run.UsersFailed,
		},
		Results: make([]UserResult, 0, len(results)),
	}
	if run.FinishedAt != nil {
		report.FinishedAt = *run.FinishedAt
	}
	if run.Error != nil {
		report.Error = *run.Error
	}
	if run.ArchiveKey != nil {
		report.ArchiveKey = *run.ArchiveKey
	}

	seenPass := make(map[Pass]bool)
	for _, rec := range results {
		pass := Pass(rec.Pass)
		if !seenPass[pass] {
			seenPass[pass] = true
			report.Passes = append(report.Passes, pass)
		}
		segments := make([]int, 0, len(rec.Segments))
		for _, id := range rec.Segments {
			segments = append(segments, int(id))
		}
		report.Results = append(report.Results, UserResult{
			UserID:   rec.UserID,
			Email:    rec.Email,
			Pass:     pass,
			State:    UserState(rec.State),
			Segments: segments,
			Errors:   rec.Errors,
		})
	}
	return report
}

// archiveKey lays reports out by day so a bucket listing reads chronologically.
func archiveKey(prefix string, report Report) string {
	day := report.StartedAt.UTC().Format("2006/01/02")
	if prefix == "" {
		prefix = "sync-runs"
	}
	return prefix + "/" + day + "/" + report.RunID + ".json"
}
