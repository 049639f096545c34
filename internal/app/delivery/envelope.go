package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

const (
	EventSubmissionCreated = "submission.created"

	SignatureHeader = "X-VeilForms-Signature"
	EventHeader     = "X-VeilForms-Event"
	UserAgent       = "VeilForms-Webhook/1.0"
)

// Envelope is the JSON body posted to an integrator. Payload is still encrypted.
type Envelope struct {
	Event        string                  `json:"event"`
	FormID       domain.FormID           `json:"formId"`
	SubmissionID domain.SubmissionID     `json:"submissionId"`
	Timestamp    int64                   `json:"timestamp"`
	Payload      domain.EncryptedPayload `json:"payload"`
}

func NewEnvelope(s domain.Submission) Envelope {
	return Envelope{
		Event:        EventSubmissionCreated,
		FormID:       s.FormID,
		SubmissionID: s.ID,
		Timestamp:    s.ReceivedAt.UnixMilli(),
		Payload:      s.Payload,
	}
}

// Sign returns base64(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
