package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/app/ingest"
	"github.com/jasonsutter87/veilforms-api/internal/app/manage"
	"github.com/jasonsutter87/veilforms-api/internal/app/submissions"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
	HeaderReplayAge      = "X-Idempotency-Age"
)

// Server holds the HTTP handlers.
type Server struct {
	Ingest *ingest.Service
	Manage *manage.Service
	Log    logrus.FieldLogger
}

func NewServer(ingestSvc *ingest.Service, manageSvc *manage.Service, log logrus.FieldLogger) *Server {
	return &Server{Ingest: ingestSvc, Manage: manageSvc, Log: logging.OrDiscard(log)}
}

func (s *Server) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	limit := s.Ingest.MaxBodyBytes()
	if r.ContentLength > limit {
		writeError(w, r, s.Log, apperr.PayloadTooLarge(limit))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, s.Log, apperr.PayloadTooLarge(limit))
			return
		}
		writeError(w, r, s.Log, apperr.Validation(apperr.CodeValidation, "could not read request body", nil))
		return
	}

	var in createSubmissionRequest
	if err := render.DecodeJSON(bytes.NewReader(body), &in); err != nil {
		writeError(w, r, s.Log, apperr.Validation(apperr.CodeValidation, "invalid JSON body", nil))
		return
	}

	req := ingest.Request{
		FormID:         domain.FormID(in.FormID),
		SubmissionID:   domain.SubmissionID(in.SubmissionID),
		Payload:        in.Payload,
		IdempotencyKey: domain.IdempotencyKey(r.Header.Get(HeaderIdempotencyKey)),
		Origin:         r.Header.Get("Origin"),
		BodySize:       int64(len(body)),
		Meta:           domain.SubmissionMeta{UserAgent: r.UserAgent()},
	}
	if in.Timestamp != nil {
		req.ClientTimestamp = time.UnixMilli(*in.Timestamp).UTC()
	}
	if in.Meta != nil {
		req.Meta.SDKVersion = in.Meta.SDKVersion
		req.Meta.Region = in.Meta.Region
		if in.Meta.UserAgent != "" {
			req.Meta.UserAgent = in.Meta.UserAgent
		}
	}

	resp, err := s.Ingest.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}

	if resp.Replayed {
		w.Header().Set(HeaderReplayed, "true")
		w.Header().Set(HeaderReplayAge, strconv.FormatInt(int64(resp.Age/time.Second), 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

func (s *Server) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	var (
		limit, offset *int
		cursor        *string
		from, to      *openapi_types.Date
	)
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dest any
	}{
		{"limit", &limit},
		{"offset", &offset},
		{"cursor", &cursor},
		{"from", &from},
		{"to", &to},
	} {
		if err := runtime.BindQueryParameter("form", true, false, p.name, q, p.dest); err != nil {
			writeError(w, r, s.Log, apperr.Validation(apperr.CodeValidation, "invalid query parameter", map[string]any{p.name: err.Error()}))
			return
		}
	}

	opts := submissions.ListOptions{}
	if limit != nil {
		opts.Limit = *limit
	}
	if offset != nil {
		opts.Offset = *offset
	}
	if cursor != nil {
		opts.Cursor = *cursor
	}
	if from != nil {
		opts.From = from.Time.UTC()
	}
	if to != nil {
		// Dates are whole days; include everything up to the end of "to".
		opts.To = to.Time.UTC().Add(24*time.Hour - time.Nanosecond)
	}

	page, err := s.Manage.ListSubmissions(r.Context(), formIDParam(r), opts)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	render.JSON(w, r, submissionList{
		Submissions: page.Items,
		Total:       page.Total,
		Limit:       clampedLimit(opts.Limit),
		Offset:      opts.Offset,
		HasMore:     page.HasMore,
		NextCursor:  page.NextCursor,
	})
}

func (s *Server) GetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Manage.GetSubmission(r.Context(), formIDParam(r), submissionIDParam(r))
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	render.JSON(w, r, sub)
}

func (s *Server) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if err := s.Manage.DeleteSubmission(r.Context(), formIDParam(r), submissionIDParam(r)); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true})
}

func (s *Server) DeleteAllSubmissions(w http.ResponseWriter, r *http.Request) {
	n, err := s.Manage.PurgeSubmissions(r.Context(), formIDParam(r))
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "deleted": n})
}

func (s *Server) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.Manage.ListDeliveries(r.Context(), formIDParam(r), submissionIDParam(r))
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if attempts == nil {
		attempts = []domain.DeliveryAttempt{}
	}
	render.JSON(w, r, map[string]any{"deliveries": attempts})
}

func (s *Server) ListQuarantined(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, r, s.Log, apperr.Validation(apperr.CodeValidation, "invalid query parameter", map[string]any{"limit": err.Error()}))
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	qs, err := s.Manage.ListQuarantined(r.Context(), formIDParam(r), n)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	out := make([]quarantinedView, 0, len(qs))
	for _, q := range qs {
		out = append(out, toQuarantinedView(q))
	}
	render.JSON(w, r, map[string]any{"webhooks": out})
}

func (s *Server) RetryQuarantined(w http.ResponseWriter, r *http.Request) {
	res, err := s.Manage.RetryQuarantined(r.Context(), formIDParam(r), chi.URLParam(r, "quarantineId"))
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "attempts": res.Attempts, "statusCode": res.StatusCode})
}

func formIDParam(r *http.Request) domain.FormID {
	return domain.FormID(chi.URLParam(r, "formId"))
}

func submissionIDParam(r *http.Request) domain.SubmissionID {
	return domain.SubmissionID(chi.URLParam(r, "submissionId"))
}

func clampedLimit(n int) int {
	if n <= 0 {
		return submissions.DefaultListLimit
	}
	if n > submissions.MaxListLimit {
		return submissions.MaxListLimit
	}
	return n
}
