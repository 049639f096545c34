package domain

import "time"

type AttemptStatus string

const (
	AttemptDelivered AttemptStatus = "delivered"
	AttemptFailed    AttemptStatus = "failed"
)

// DeliveryAttempt is one entry of a submission's delivery attempt log.
type DeliveryAttempt struct {
	Status     AttemptStatus `json:"status"`
	Attempt    int           `json:"attempt"`
	StatusCode int           `json:"statusCode,omitempty"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// MaxDeliveryAttempts bounds the attempt log kept per submission.
const MaxDeliveryAttempts = 10

type QuarantineStatus string

const (
	QuarantinePending  QuarantineStatus = "pending"
	QuarantineRetrying QuarantineStatus = "retrying"
)

// QuarantinedWebhook holds everything needed to redeliver a webhook without re-reading the submission.
type QuarantinedWebhook struct {
	ID             string           `json:"id"`
	FormID         FormID           `json:"formId"`
	SubmissionID   SubmissionID     `json:"submissionId"`
	URL            string           `json:"url"`
	Submission     Submission       `json:"submission"`
	Secret         string           `json:"secret,omitempty"`
	LastError      string           `json:"lastError"`
	LastStatusCode int              `json:"lastStatusCode,omitempty"`
	FailedAt       time.Time        `json:"failedAt"`
	Retries        int              `json:"retries"`
	Status         QuarantineStatus `json:"status"`
}

// MaxQuarantineEntries bounds a form's quarantine index.
const MaxQuarantineEntries = 1000
