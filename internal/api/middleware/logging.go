// Package middleware holds the small set of chi middleware this adapter
// actually needs. Auth and rate limiting are handled upstream of this
// service (SPEC_FULL.md §1 Non-goals); this package is left with the one
// piece of ambient behavior every request needs: structured request logging.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/conductorhq/agentorch/internal/logger"
)

// RequestLogger logs one structured line per request with status, method,
// path and duration, in the style of internal/logger's other child loggers.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Get().Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
