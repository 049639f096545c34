package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/oapi-codegen/nullable"
	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
)

type ErrorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestID nullable.Nullable[string]         `json:"requestId,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if len(details) > 0 {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestID = nullable.NewNullableWithValue(rid)
	}
	render.Status(r, status)
	render.JSON(w, r, er)
}

// writeError maps err onto the error envelope. Server-side failures are logged with their cause.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	rich := apperr.From(err)
	if rich.Code >= http.StatusInternalServerError {
		log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"code":       rich.TextCode,
		}).WithError(err).Error("request failed")
	}
	writeErrorBody(w, r, rich.Code, rich.TextCode, rich.Message, rich.Metadata)
}
