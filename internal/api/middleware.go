package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/metriq/internal/auth"
)

// ActorHeader carries the caller identity resolved by the upstream
// authentication proxy. Requests without it are attributed to "anonymous".
const ActorHeader = "X-Actor"

// responseWriter captures HTTP status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ActorMiddleware lifts the resolved identity header onto the request
// context for change attribution.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(ActorHeader); actor != "" {
			r = r.WithContext(auth.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs one structured line per request: method, path,
// status, duration and the attributed actor, keyed by a generated request id.
func LoggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.Info().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", time.Since(start)).
			Str("actor", auth.ActorOrAnonymous(r.Context())).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}
