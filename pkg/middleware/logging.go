package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tmercier/keepsake/pkg/contextkeys"
)

// statusRecorder captures the response status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogging assigns each request a uuid, stamps its start time into
// the context, and writes one structured access-log line per request.
func RequestLogging(log *logrus.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			ctx = contextkeys.WithRequestStartTime(ctx, start)
			w.Header().Set("X-Request-ID", requestID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			log.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     recorder.status,
				"duration":   time.Since(start).String(),
				"remote":     r.RemoteAddr,
			}).Info("request handled")
		})
	}
}
