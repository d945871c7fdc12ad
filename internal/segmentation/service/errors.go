package service

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a batch run is requested while one is running.
var ErrSyncInProgress = errors.New("segment sync already in progress")

// SyncJobError wraps a failure that ended a whole batch run.
type SyncJobError struct {
	RunID string
	Err   error
}

func (e *SyncJobError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("segment sync job failed: %v", e.Err)
	}
	return fmt.Sprintf("segment sync job %s failed: %v", e.RunID, e.Err)
}

func (e *SyncJobError) Unwrap() error {
	return e.Err
}
