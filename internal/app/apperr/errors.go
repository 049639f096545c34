// Package apperr holds the error taxonomy shared by the application services.
//
// Every error a service returns to a caller is a *goerrors.Error carrying an HTTP status in Code
// and a stable machine code in TextCode, so transports never need to inspect messages.
package apperr

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeInvalidFormID         = "INVALID_FORM_ID"
	CodeInvalidSubmissionID   = "INVALID_SUBMISSION_ID"
	CodeInvalidIdempotencyKey = "INVALID_IDEMPOTENCY_KEY"
	CodePayloadTooLarge       = "PAYLOAD_TOO_LARGE"
	CodeEncryptionRequired    = "ENCRYPTION_REQUIRED"

	CodeFormNotFound       = "FORM_NOT_FOUND"
	CodeSubmissionNotFound = "SUBMISSION_NOT_FOUND"
	CodeQuarantineNotFound = "QUARANTINE_NOT_FOUND"

	CodeUnauthorized = "UNAUTHORIZED"

	CodeFormInactive     = "FORM_INACTIVE"
	CodeOriginNotAllowed = "ORIGIN_NOT_ALLOWED"

	CodeQuotaExceeded = "QUOTA_EXCEEDED"

	CodeDeliveryFailed = "DELIVERY_FAILED"
	CodeStorage        = "STORAGE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

func newError(message string, category goerrors.Category, status int, code string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(code)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// Validation reports malformed input. code is one of the Code* validation constants.
func Validation(code, message string, details map[string]any) error {
	return newError(message, goerrors.CategoryValidation, http.StatusBadRequest, code, details)
}

func PayloadTooLarge(limit int64) error {
	return newError("request body too large", goerrors.CategoryBadInput, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
		map[string]any{"limit": limit})
}

// EncryptionRequired reports a payload that is not a complete encrypted envelope.
func EncryptionRequired(missing []string) error {
	details := map[string]any{}
	if len(missing) > 0 {
		details["missing"] = missing
	}
	return newError("payload must be client-side encrypted", goerrors.CategoryValidation, http.StatusBadRequest, CodeEncryptionRequired, details)
}

func NotFound(code, message string) error {
	return newError(message, goerrors.CategoryNotFound, http.StatusNotFound, code, nil)
}

func Unauthorized(message string) error {
	return newError(message, goerrors.CategoryAuth, http.StatusUnauthorized, CodeUnauthorized, nil)
}

func Forbidden(code, message string) error {
	return newError(message, goerrors.CategoryAuthz, http.StatusForbidden, code, nil)
}

func QuotaExceeded(limit, current int) error {
	return newError("monthly submission limit reached", goerrors.CategoryRateLimit, http.StatusTooManyRequests, CodeQuotaExceeded,
		map[string]any{"limit": limit, "current": current})
}

// Storage wraps a persistence failure. The source error is kept for logs, not shown to callers.
func Storage(source error, message string) error {
	if source == nil {
		return newError(message, goerrors.CategoryInternal, http.StatusInternalServerError, CodeStorage, nil)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeStorage)
}

// DeliveryFailed surfaces an operator-triggered redelivery that did not succeed.
func DeliveryFailed(source error, metadata map[string]any) error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "webhook delivery failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(CodeDeliveryFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// From maps any error onto the taxonomy. Unknown errors become opaque internal errors.
func From(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code == 0 {
			rich.Code = http.StatusInternalServerError
		}
		if rich.TextCode == "" {
			rich.TextCode = CodeInternal
		}
		return rich
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected error occurred").
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeInternal)
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == code
}
