package ingest

import (
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// DefaultMaxBodyBytes is the request size ceiling when none is configured.
const DefaultMaxBodyBytes = 1 << 20

type Request struct {
	FormID       domain.FormID
	SubmissionID domain.SubmissionID
	// Payload is nil when the caller omitted it.
	Payload         *domain.EncryptedPayload
	ClientTimestamp time.Time
	Meta            domain.SubmissionMeta

	IdempotencyKey domain.IdempotencyKey
	Origin         string
	BodySize       int64
}

// Response is what the caller gets back. Body is the exact JSON sent on the first acceptance,
// replayed byte for byte for duplicates.
type Response struct {
	SubmissionID domain.SubmissionID
	Timestamp    int64
	Body         []byte

	Replayed bool
	Age      time.Duration
}

// Limits maps a tier to its monthly submission allowance. A missing tier or a value <= 0 is unlimited.
type Limits map[domain.Tier]int

func DefaultLimits() Limits {
	return Limits{
		domain.TierFree:       100,
		domain.TierPro:        1000,
		domain.TierTeam:       10000,
		domain.TierEnterprise: 0,
	}
}

type acceptedBody struct {
	Success      bool                `json:"success"`
	SubmissionID domain.SubmissionID `json:"submissionId"`
	Timestamp    int64               `json:"timestamp"`
}
