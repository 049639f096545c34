package deliverylog

import (
	"context"
	"errors"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// ErrNotFound indicates the quarantined webhook does not exist.
var ErrNotFound = errors.New("quarantined webhook not found")

// Store records delivery attempts and quarantined webhooks.
type Store interface {
	// AppendAttempt adds a to the submission's attempt log, keeping only the newest max entries.
	AppendAttempt(ctx context.Context, id domain.SubmissionID, a domain.DeliveryAttempt, max int) error
	// ListAttempts returns the attempt log newest-first.
	ListAttempts(ctx context.Context, id domain.SubmissionID) ([]domain.DeliveryAttempt, error)
	// DeleteAttempts drops the submission's attempt log. A missing log is not an error.
	DeleteAttempts(ctx context.Context, id domain.SubmissionID) error

	// Quarantine stores q and prepends its id to the form's quarantine index, trimmed to max.
	Quarantine(ctx context.Context, q domain.QuarantinedWebhook, max int) error
	// UpdateQuarantined overwrites an existing record without touching the index.
	UpdateQuarantined(ctx context.Context, q domain.QuarantinedWebhook) error
	GetQuarantined(ctx context.Context, formID domain.FormID, id string) (domain.QuarantinedWebhook, error)
	// ListQuarantined returns up to limit records newest-first.
	ListQuarantined(ctx context.Context, formID domain.FormID, limit int) ([]domain.QuarantinedWebhook, error)
	RemoveQuarantined(ctx context.Context, formID domain.FormID, id string) error
}
