package idempotency

import (
	"context"
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// Record is the stored response we can replay for a duplicate submission.
type Record struct {
	Response  []byte
	CreatedAt time.Time
}

// MaxKeysPerForm bounds the per-form key index kept for bulk cleanup.
const MaxKeysPerForm = 1000

// Store persists idempotency records keyed by (form, key).
//
// Put also appends the key to a per-form index (capped at MaxKeysPerForm, oldest trimmed).
// The index is advisory and only used by DeleteForm.
type Store interface {
	Get(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) (Record, bool, error)
	Put(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey, rec Record) error
	Delete(ctx context.Context, formID domain.FormID, key domain.IdempotencyKey) error

	// DeleteForm removes every indexed key for the form and returns how many records were removed.
	DeleteForm(ctx context.Context, formID domain.FormID) (int, error)
}
