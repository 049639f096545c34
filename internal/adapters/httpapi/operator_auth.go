package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
)

// NewOperatorTokenMiddleware enforces Authorization: Bearer <token> on the owner routes.
func NewOperatorTokenMiddleware(token string, log logrus.FieldLogger) func(http.Handler) http.Handler {
	log = logging.OrDiscard(log)
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeError(w, r, log, apperr.Unauthorized("missing Authorization header"))
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, log, apperr.Unauthorized("malformed Authorization header"))
				return
			}
			got := []byte(strings.TrimSpace(strings.TrimPrefix(authz, prefix)))
			if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, r, log, apperr.Unauthorized("invalid operator token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
