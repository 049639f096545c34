package domain

import "regexp"

// FormID identifies a form. Forms are created by the dashboard and look like "vf_xxxx" or a UUID.
type FormID string

// SubmissionID is generated by the SDK before encryption so it can be bound into the ciphertext.
type SubmissionID string

// IdempotencyKey is the caller-provided Idempotency-Key header value.
type IdempotencyKey string

// OwnerID identifies the account that owns a form (quota and audit scope).
type OwnerID string

var (
	uuidPattern           = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	hex32Pattern          = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	formIDPattern         = regexp.MustCompile(`^vf[_-][A-Za-z0-9_-]{1,64}$`)
	idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// Valid reports whether id is a UUID or a 32 character hex string.
func (id SubmissionID) Valid() bool {
	s := string(id)
	return uuidPattern.MatchString(s) || hex32Pattern.MatchString(s)
}

// Valid reports whether id is a prefixed form id or a UUID.
func (id FormID) Valid() bool {
	s := string(id)
	return formIDPattern.MatchString(s) || uuidPattern.MatchString(s)
}

func (k IdempotencyKey) Valid() bool {
	return idempotencyKeyPattern.MatchString(string(k))
}
