package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	memaudit "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/audit"
	memclock "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/clock"
	memdeliverylog "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/deliverylog"
	memformrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/formrepo"
	memidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/idempotency"
	memquota "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/quota"
	memsubmissionrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/submissionrepo"
	"github.com/jasonsutter87/veilforms-api/internal/app/delivery"
	"github.com/jasonsutter87/veilforms-api/internal/app/idempotency"
	"github.com/jasonsutter87/veilforms-api/internal/app/ingest"
	"github.com/jasonsutter87/veilforms-api/internal/app/manage"
	"github.com/jasonsutter87/veilforms-api/internal/app/submissions"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

const testFormID = "vf_newsletter"

type testEnv struct {
	handler http.Handler
	server  *Server
	clk     *memclock.ManualClock
	engine  *delivery.Engine
	sched   *delivery.DetachedScheduler
}

func newTestEnv(t *testing.T, webhookURL string) *testEnv {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	forms := memformrepo.NewRepo(domain.Form{
		ID:             testFormID,
		OwnerID:        "owner-1",
		Status:         domain.FormActive,
		Tier:           domain.TierPro,
		AllowedOrigins: []string{"https://example.com"},
		WebhookURL:     webhookURL,
	})
	auditLog := memaudit.NewRecorder()
	subs := submissions.NewService(memsubmissionrepo.NewRepo(), forms, nil)
	idem := idempotency.NewService(memidempotency.NewStore(), clk, nil)
	engine := delivery.NewEngine(memdeliverylog.NewStore(), auditLog, clk, nil)
	engine.SetSleepForTest(func(context.Context, time.Duration) error { return nil })
	sched := delivery.NewDetachedScheduler(engine, nil)

	ingestSvc := ingest.NewService(ingest.Deps{
		Forms:       forms,
		Idempotency: idem,
		Submissions: subs,
		Scheduler:   sched,
		Quota:       memquota.NewCounter(),
		Audit:       auditLog,
		Clock:       clk,
	})
	manageSvc := manage.NewService(forms, subs, idem, engine, auditLog, clk, nil)

	server := NewServer(ingestSvc, manageSvc, nil)
	return &testEnv{
		handler: NewRouter(server),
		server:  server,
		clk:     clk,
		engine:  engine,
		sched:   sched,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func submissionBody(id string) map[string]any {
	return map[string]any{
		"formId":       testFormID,
		"submissionId": id,
		"payload": map[string]any{
			"encrypted":    true,
			"version":      "1",
			"data":         "ZGF0YQ==",
			"encryptedKey": "a2V5",
			"iv":           "aXY=",
		},
		"meta": map[string]any{"sdkVersion": "2.0.0"},
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var body struct {
		Error struct {
			Code      string         `json:"code"`
			Details   map[string]any `json:"details"`
			RequestID string         `json:"requestId"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body %q: %v", rr.Body.String(), err)
	}
	if body.Error.RequestID == "" {
		t.Fatalf("missing requestId in %s", rr.Body.String())
	}
	return body.Error.Code, body.Error.Details
}

func TestCreateSubmission_OK(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	rr := env.do(t, http.MethodPost, "/submissions", submissionBody("0123456789abcdef0123456789abcdef"), map[string]string{
		"Origin": "https://example.com",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		Success      bool   `json:"success"`
		SubmissionID string `json:"submissionId"`
		Timestamp    int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Success || out.SubmissionID != "0123456789abcdef0123456789abcdef" || out.Timestamp != env.clk.Now().UnixMilli() {
		t.Fatalf("out=%+v", out)
	}
	if rr.Header().Get(HeaderReplayed) != "" {
		t.Fatalf("fresh response marked as replay")
	}
}

func TestCreateSubmission_ReplayHeaders(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	headers := map[string]string{"Origin": "https://example.com", HeaderIdempotencyKey: "abcdefghijklmnop-1234"}

	first := env.do(t, http.MethodPost, "/submissions", submissionBody("0123456789abcdef0123456789abcdef"), headers)
	if first.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", first.Code, first.Body.String())
	}
	env.clk.Advance(90 * time.Second)
	second := env.do(t, http.MethodPost, "/submissions", submissionBody("fedcba9876543210fedcba9876543210"), headers)
	if second.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", second.Code, second.Body.String())
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body=%s want %s", second.Body.String(), first.Body.String())
	}
	if second.Header().Get(HeaderReplayed) != "true" || second.Header().Get(HeaderReplayAge) != "90" {
		t.Fatalf("headers=%v", second.Header())
	}
}

func TestCreateSubmission_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    any
		headers map[string]string
		status  int
		code    string
	}{
		{"bad json", "{", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad submission id", submissionBody("nope"), nil, http.StatusBadRequest, "INVALID_SUBMISSION_ID"},
		{"origin", submissionBody("0123456789abcdef0123456789abcdef"), map[string]string{"Origin": "https://other.example"}, http.StatusForbidden, "ORIGIN_NOT_ALLOWED"},
		{"too large", `{"formId":"` + strings.Repeat("x", ingest.DefaultMaxBodyBytes) + `"}`, nil, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, "")
			rr := env.do(t, http.MethodPost, "/submissions", tc.body, tc.headers)
			if rr.Code != tc.status {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if code, _ := decodeError(t, rr); code != tc.code {
				t.Fatalf("code=%s", code)
			}
		})
	}
}

func TestCreateSubmission_QuotaDetails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	// Pro tier allows 1000 per month by default.
	for i := 0; i < 1000; i++ {
		rr := env.do(t, http.MethodPost, "/submissions", submissionBody(fmt.Sprintf("%032x", i)), map[string]string{"Origin": "https://example.com"})
		if rr.Code != http.StatusOK {
			t.Fatalf("submission %d status=%d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/submissions", submissionBody(fmt.Sprintf("%032x", 1000)), map[string]string{"Origin": "https://example.com"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	code, details := decodeError(t, rr)
	if code != "QUOTA_EXCEEDED" || details["limit"] != float64(1000) || details["current"] != float64(1000) {
		t.Fatalf("code=%s details=%v", code, details)
	}
}

func TestCreateSubmission_Preflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/submissions", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Idempotency-Key")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Fatalf("headers=%v", rr.Header())
	}
}

func TestOperatorRoutes_ListGetDelete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	for i := 0; i < 3; i++ {
		env.clk.Advance(time.Minute)
		rr := env.do(t, http.MethodPost, "/submissions", submissionBody(fmt.Sprintf("%032x", i)), map[string]string{"Origin": "https://example.com"})
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
	}

	rr := env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions?limit=2", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var list submissionList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if list.Total != 3 || len(list.Submissions) != 2 || !list.HasMore || list.NextCursor == "" || list.Limit != 2 {
		t.Fatalf("list=%+v", list)
	}
	if list.Submissions[0].ID != domain.SubmissionID(fmt.Sprintf("%032x", 2)) {
		t.Fatalf("first=%s", list.Submissions[0].ID)
	}

	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions?limit=2&cursor="+list.NextCursor, nil, nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Submissions) != 1 || list.HasMore {
		t.Fatalf("list=%+v", list)
	}

	id := fmt.Sprintf("%032x", 0)
	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions/"+id, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, "/forms/"+testFormID+"/submissions/"+id, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions/"+id, nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	if code, _ := decodeError(t, rr); code != "SUBMISSION_NOT_FOUND" {
		t.Fatalf("code=%s", code)
	}

	rr = env.do(t, http.MethodDelete, "/forms/"+testFormID+"/submissions", nil, nil)
	var purged struct {
		Success bool `json:"success"`
		Deleted int  `json:"deleted"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &purged); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !purged.Success || purged.Deleted != 2 {
		t.Fatalf("purged=%+v", purged)
	}
}

func TestOperatorRoutes_DateRangeAndBadParams(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	rr := env.do(t, http.MethodPost, "/submissions", submissionBody("0123456789abcdef0123456789abcdef"), map[string]string{"Origin": "https://example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	var list submissionList
	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions?from=2024-05-01&to=2024-05-01", nil, nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Submissions) != 1 {
		t.Fatalf("list=%+v", list)
	}
	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions?from=2024-05-02", nil, nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Submissions) != 0 {
		t.Fatalf("list=%+v", list)
	}

	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions?limit=many", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/forms/vf_unknown/submissions", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestOperatorRoutes_QuarantineAndRetry(t *testing.T) {
	t.Parallel()

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(hook.Close)

	env := newTestEnv(t, hook.URL)
	id := "0123456789abcdef0123456789abcdef"
	rr := env.do(t, http.MethodPost, "/submissions", submissionBody(id), map[string]string{"Origin": "https://example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := env.sched.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/webhooks/quarantine", nil, nil)
	var q struct {
		Webhooks []map[string]any `json:"webhooks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(q.Webhooks) != 1 || q.Webhooks[0]["retries"] != float64(3) {
		t.Fatalf("webhooks=%v", q.Webhooks)
	}
	if _, leaked := q.Webhooks[0]["secret"]; leaked {
		t.Fatalf("secret exposed")
	}

	rr = env.do(t, http.MethodGet, "/forms/"+testFormID+"/submissions/"+id+"/deliveries", nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"failed"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	qid := q.Webhooks[0]["id"].(string)
	rr = env.do(t, http.MethodPost, "/forms/"+testFormID+"/webhooks/quarantine/"+qid+"/retry", nil, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if code, _ := decodeError(t, rr); code != "DELIVERY_FAILED" {
		t.Fatalf("code=%s", code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	rr := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
