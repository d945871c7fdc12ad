package repository

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord is one row of segment_sync_runs.
type RunRecord struct {
	ID           uuid.UUID  `db:"id"`
	Trigger      string     `db:"trigger"`
	Status       string     `db:"status"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	UsersTotal   int        `db:"users_total"`
	UsersSynced  int        `db:"users_synced"`
	UsersSkipped int        `db:"users_skipped"`
	UsersFailed  int        `db:"users_failed"`
	Error        *string    `db:"error"`

	// ArchiveKey is set only when the report was uploaded to object storage.
	ArchiveKey *string `db:"archive_key"`
}

// ResultRecord is one row of segment_sync_run_results.
type ResultRecord struct {
	Pass     string   `db:"pass"`
	UserID   string   `db:"user_id"`
	Email    string   `db:"email"`
	State    string   `db:"state"`
	Segments []int32  `db:"segments"`
	Errors   []string `db:"errors"`
}
