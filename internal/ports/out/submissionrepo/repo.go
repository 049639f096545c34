package submissionrepo

import (
	"context"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// Repository stores submission records and the per-form index separately.
//
// The record and the index are independent keys: writing one never implies the other, so callers
// decide how to treat a failure between the two.
//
// Index ordering: newest-first. Reads use [start, stop) positions into that order.
type Repository interface {
	SaveRecord(ctx context.Context, s domain.Submission) error
	GetRecord(ctx context.Context, formID domain.FormID, id domain.SubmissionID) (domain.Submission, error)
	DeleteRecord(ctx context.Context, formID domain.FormID, id domain.SubmissionID) error

	// PrependIndex pushes e onto the front of the form's index and trims it to max entries.
	PrependIndex(ctx context.Context, formID domain.FormID, e domain.IndexEntry, max int) error
	// ReadIndex returns entries in positions [start, stop). Out of range positions are ignored.
	ReadIndex(ctx context.Context, formID domain.FormID, start, stop int) ([]domain.IndexEntry, error)
	IndexLen(ctx context.Context, formID domain.FormID) (int, error)
	RemoveFromIndex(ctx context.Context, formID domain.FormID, id domain.SubmissionID) error

	// DeleteAll removes every record of the form, including records no longer reachable through
	// the index, clears the index and returns the number of records removed.
	DeleteAll(ctx context.Context, formID domain.FormID) (int, error)
}
