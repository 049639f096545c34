package audit

import (
	"context"
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

const (
	EventSubmissionCreated  = "submission.created"
	EventSubmissionDeleted  = "submission.deleted"
	EventSubmissionsPurged  = "submissions.purged"
	EventWebhookQuarantined = "webhook.quarantined"
	EventWebhookRedelivered = "webhook.redelivered"
)

type Event struct {
	Type    string
	OwnerID domain.OwnerID
	FormID  domain.FormID
	Details map[string]any
	At      time.Time
}

// Logger records account events. Implementations must not block or fail the caller.
type Logger interface {
	Record(ctx context.Context, e Event)
}
