package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
)

func TestOperatorTokenMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "")
	handler := NewRouterWithOptions(env.server, RouterOptions{
		OperatorMiddleware: NewOperatorTokenMiddleware("op-secret", nil),
	})

	cases := []struct {
		name   string
		authz  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic b3A6c2VjcmV0", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"valid", "Bearer op-secret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/forms/"+testFormID+"/submissions", nil)
		if tc.authz != "" {
			req.Header.Set("Authorization", tc.authz)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Fatalf("%s: status=%d body=%s", tc.name, rr.Code, rr.Body.String())
		}
		if tc.status == http.StatusUnauthorized {
			if code, _ := decodeError(t, rr); code != apperr.CodeUnauthorized {
				t.Fatalf("%s: code=%s", tc.name, code)
			}
		}
	}

	// Ingestion and health stay open.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodOptions, "/submissions", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code == http.StatusUnauthorized {
		t.Fatalf("preflight should not require a token")
	}
}
