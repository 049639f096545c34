package delivery

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed attempt. Retry decisions are made on the kind, never on messages.
type ErrorKind string

const (
	KindClientStatus     ErrorKind = "client_status"     // 4xx
	KindServerStatus     ErrorKind = "server_status"     // 5xx
	KindUnexpectedStatus ErrorKind = "unexpected_status" // 1xx/3xx that survived redirect handling
	KindTimeout          ErrorKind = "timeout"
	KindNetwork          ErrorKind = "network"
	KindInvalidRequest   ErrorKind = "invalid_request"
)

// DeliveryError describes why one attempt failed.
type DeliveryError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindClientStatus, KindServerStatus, KindUnexpectedStatus:
		return fmt.Sprintf("webhook responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	case KindTimeout:
		return "webhook request timed out"
	}
	if e.Err != nil {
		return fmt.Sprintf("webhook %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("webhook %s error", e.Kind)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *DeliveryError) Retryable() bool {
	switch e.Kind {
	case KindServerStatus, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

func classifyStatus(code int) *DeliveryError {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 400 && code < 500:
		return &DeliveryError{Kind: KindClientStatus, StatusCode: code}
	case code >= 500:
		return &DeliveryError{Kind: KindServerStatus, StatusCode: code}
	default:
		return &DeliveryError{Kind: KindUnexpectedStatus, StatusCode: code}
	}
}
