package domain

import "time"

// EncryptedPayload is the client-side encrypted blob. The service never inspects its contents
// beyond checking that the envelope fields are present.
type EncryptedPayload struct {
	Encrypted    bool   `json:"encrypted"`
	Version      string `json:"version"`
	Data         string `json:"data"`
	EncryptedKey string `json:"encryptedKey"`
	IV           string `json:"iv"`
}

// MissingFields lists the envelope fields that are empty, in wire order.
func (p EncryptedPayload) MissingFields() []string {
	var missing []string
	if p.Data == "" {
		missing = append(missing, "data")
	}
	if p.EncryptedKey == "" {
		missing = append(missing, "encryptedKey")
	}
	if p.IV == "" {
		missing = append(missing, "iv")
	}
	if p.Version == "" {
		missing = append(missing, "version")
	}
	return missing
}

// SubmissionMeta is request metadata captured at ingestion time.
type SubmissionMeta struct {
	SDKVersion string `json:"sdkVersion,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	Region     string `json:"region,omitempty"`
}

// Submission is the stored record of one accepted ingestion. It is never updated.
type Submission struct {
	ID              SubmissionID     `json:"id"`
	FormID          FormID           `json:"formId"`
	Payload         EncryptedPayload `json:"payload"`
	ClientTimestamp time.Time        `json:"timestamp"`
	ReceivedAt      time.Time        `json:"receivedAt"`
	Meta            SubmissionMeta   `json:"meta"`
}

// IndexEntry is one reference in a form's newest-first submission index.
type IndexEntry struct {
	SubmissionID SubmissionID `json:"id"`
	Timestamp    time.Time    `json:"ts"`
}

// MaxIndexEntries bounds a form's submission index. Older entries are dropped, not archived.
const MaxIndexEntries = 10000
