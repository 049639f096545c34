package httpapi

import (
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

type createSubmissionRequest struct {
	FormID       string                   `json:"formId"`
	SubmissionID string                   `json:"submissionId"`
	Payload      *domain.EncryptedPayload `json:"payload"`
	// Timestamp is the client clock in Unix milliseconds.
	Timestamp *int64 `json:"timestamp,omitempty"`
	Meta      *struct {
		SDKVersion string `json:"sdkVersion"`
		UserAgent  string `json:"userAgent"`
		Region     string `json:"region"`
	} `json:"meta,omitempty"`
}

type submissionList struct {
	Submissions []domain.Submission `json:"submissions"`
	Total       int                 `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
	HasMore     bool                `json:"hasMore"`
	NextCursor  string              `json:"nextCursor,omitempty"`
}

// quarantinedView omits the signing secret and the stored payload.
type quarantinedView struct {
	ID             string                  `json:"id"`
	SubmissionID   domain.SubmissionID     `json:"submissionId"`
	URL            string                  `json:"url"`
	LastError      string                  `json:"lastError"`
	LastStatusCode int                     `json:"lastStatusCode,omitempty"`
	FailedAt       time.Time               `json:"failedAt"`
	Retries        int                     `json:"retries"`
	Status         domain.QuarantineStatus `json:"status"`
}

func toQuarantinedView(q domain.QuarantinedWebhook) quarantinedView {
	return quarantinedView{
		ID:             q.ID,
		SubmissionID:   q.SubmissionID,
		URL:            q.URL,
		LastError:      q.LastError,
		LastStatusCode: q.LastStatusCode,
		FailedAt:       q.FailedAt,
		Retries:        q.Retries,
		Status:         q.Status,
	}
}
