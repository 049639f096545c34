package formrepo

import (
	"context"
	"errors"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// ErrNotFound indicates the form does not exist.
var ErrNotFound = errors.New("form not found")

// Repository is the form-lookup collaborator plus the denormalized submission counter.
type Repository interface {
	Get(ctx context.Context, id domain.FormID) (domain.Form, error)

	// AdjustSubmissionCount adds delta to the counter, flooring the result at zero, and returns it.
	AdjustSubmissionCount(ctx context.Context, id domain.FormID, delta int) (int, error)
	ResetSubmissionCount(ctx context.Context, id domain.FormID) error
}
