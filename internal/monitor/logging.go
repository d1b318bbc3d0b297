package monitor

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/arcflow-dev/powerpool/internal/logger"
)

// requestLogger logs each request at Info level with the same field set
// (method, path, status, duration, request id) the dispatcher and
// worker packages use for their own structured logging.
func requestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("monitor request")
		})
	}
}
