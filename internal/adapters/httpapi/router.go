package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type RouterOptions struct {
	// OperatorMiddleware guards the per-form owner routes, e.g. NewOperatorTokenMiddleware.
	OperatorMiddleware func(http.Handler) http.Handler
}

// NewRouter constructs the API HTTP router.
func NewRouter(s *Server) http.Handler {
	return NewRouterWithOptions(s, RouterOptions{})
}

func NewRouterWithOptions(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The SDK posts from arbitrary sites; the per-form allow-list is enforced by the ingest service.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowOriginFunc:  func(_ *http.Request, _ string) bool { return true },
			AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", HeaderIdempotencyKey},
			ExposedHeaders:   []string{HeaderReplayed, HeaderReplayAge},
			AllowCredentials: false,
			MaxAge:           600,
		}))
		r.Post("/submissions", s.CreateSubmission)
		r.Options("/submissions", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Route("/forms/{formId}", func(r chi.Router) {
		if opts.OperatorMiddleware != nil {
			r.Use(opts.OperatorMiddleware)
		}
		r.Get("/submissions", s.ListSubmissions)
		r.Delete("/submissions", s.DeleteAllSubmissions)
		r.Get("/submissions/{submissionId}", s.GetSubmission)
		r.Delete("/submissions/{submissionId}", s.DeleteSubmission)
		r.Get("/submissions/{submissionId}/deliveries", s.ListDeliveries)
		r.Get("/webhooks/quarantine", s.ListQuarantined)
		r.Post("/webhooks/quarantine/{quarantineId}/retry", s.RetryQuarantined)
	})
	return r
}

func accessLog(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
				"remote_addr": r.RemoteAddr,
			}).Info("http request")
		})
	}
}
