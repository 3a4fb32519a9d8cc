// Package middleware provides the HTTP middleware for flapd: request ids,
// per-IP rate limiting and bearer-token auth.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/flap-ai/flapd/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an id: the client's X-Request-ID when
// present, a fresh uuid otherwise. The id rides the context for log
// enrichment and is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
