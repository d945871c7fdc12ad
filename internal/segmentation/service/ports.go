package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/internal/segmentation/repository"
)

// AggregateReader reads behavioral aggregates for one user.
type AggregateReader interface {
	CategoryClickCount(ctx context.Context, userID, category string) (int64, error)
	TotalClickCount(ctx context.Context, userID string) (int64, error)
	PurchasedPolicyCount(ctx context.Context, userID string) (int64, error)
	TotalClaimAmount(ctx context.Context, userID string) (float64, error)
}

// PopulationReader enumerates the users a batch pass visits.
type PopulationReader interface {
	ListUsers(ctx context.Context) ([]domain.UserIdentity, error)
	ListInactiveUsers(ctx context.Context, now time.Time) ([]domain.InactiveUser, error)
}

// ActivityReader reports per-email profile activity.
type ActivityReader interface {
	ActiveProfiles(ctx context.Context) ([]domain.EmailActivity, error)
}

// ContactUpserter resolves a CRM contact id by email.
type ContactUpserter interface {
	Upsert(ctx context.Context, name, email string) (int, error)
}

// SegmentAssigner adds a contact to segments.
type SegmentAssigner interface {
	Assign(ctx context.Context, contactID int, segmentIDs ...int) error
}

// UserDirectory looks users up in the internal user table.
type UserDirectory interface {
	FindUserByID(ctx context.Context, userID string) (domain.UserIdentity, error)
}

// RunStore persists batch run reports.
type RunStore interface {
	CreateRun(ctx context.Context, run repository.RunRecord) error
	FinishRun(ctx context.Context, run repository.RunRecord, results []repository.ResultRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (repository.RunRecord, []repository.ResultRecord, error)
}

// RunLock is a cross-process single-flight lock for batch runs.
type RunLock interface {
	Acquire(ctx context.Context) (release func(context.Context), acquired bool, err error)
}

// SyncEnqueuer hands a batch run to the background worker.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, trigger, requestedBy string) (string, error)
}

// EventForwarder forwards raw tracking events to the profile store.
type EventForwarder interface {
	TrackEvent(ctx context.Context, payload []byte) (int, []byte, error)
}
