package crm

import (
	"context"
	"errors"
	"fmt"

	"segmentation_backend/platform/apperr"
	"segmentation_backend/platform/logger"
)

// SegmentWriter adds contacts to CRM segments.
type SegmentWriter interface {
	AddContactToSegment(ctx context.Context, contactID, segmentID int) error
}

// AssignError lists the segments a contact could not be added to.
type AssignError struct {
	ContactID int
	Failed    []int
	Err       error
}

func (e *AssignError) Error() string {
	return fmt.Sprintf("contact %d: failed segments %v: %v", e.ContactID, e.Failed, e.Err)
}

func (e *AssignError) Unwrap() error {
	return e.Err
}

// FailedSegments returns the segments named by an AssignError in err's chain.
func FailedSegments(err error) []int {
	var assignErr *AssignError
	if errors.As(err, &assignErr) {
		return assignErr.Failed
	}
	return nil
}

// Assigner asserts segment membership. Membership is only ever added.
type Assigner struct {
	segments SegmentWriter
	log      *logger.Logger
}

// NewAssigner creates a segment assigner.
func NewAssigner(segments SegmentWriter, log *logger.Logger) *Assigner {
	return &Assigner{segments: segments, log: log}
}

// Assign adds the contact to every segment once. A failed add does not undo
// or stop the others.
func (a *Assigner) Assign(ctx context.Context, contactID int, segmentIDs ...int) error {
	seen := make(map[int]struct{}, len(segmentIDs))
	var failed []int
	var errs []error

	for _, segmentID := range segmentIDs {
		if _, dup := seen[segmentID]; dup {
			continue
		}
		seen[segmentID] = struct{}{}

		if err := a.segments.AddContactToSegment(ctx, contactID, segmentID); err != nil {
			failed = append(failed, segmentID)
			errs = append(errs, fmt.Errorf("segment %d: %w", segmentID, err))
			continue
		}
		a.log.Debug("contact added to segment", "contactId", contactID, "segmentId", segmentID)
	}

	if len(errs) == 0 {
		return nil
	}
	return apperr.UpstreamWrite("mautic: assign segments", &AssignError{
		ContactID: contactID,
		Failed:    failed,
		Err:       errors.Join(errs...),
	})
}
